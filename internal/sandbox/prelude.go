package sandbox

// prelude builds the script-facing globals on top of the native bindings. It is
// evaluated once per runtime, before the plugin script, and returns the buffer wrapper.
const prelude = `(function (native, info) {
  'use strict';

  function wrap(ab) {
    var u = new Uint8Array(ab);
    Object.defineProperty(u, 'toString', {
      value: function (enc) { return native.encode(this, enc || 'utf8'); },
    });
    return u;
  }

  function buf(fn) {
    return function () { return wrap(fn.apply(null, arguments)); };
  }

  function promised(fn) {
    return function () {
      var args = arguments;
      return new Promise(function (resolve, reject) {
        try { resolve(fn.apply(null, args)); } catch (e) { reject(e); }
      });
    };
  }

  function logger(level) {
    return function () { native.log(level, Array.prototype.slice.call(arguments)); };
  }

  var Buffer = {
    from: function (data, enc) { return wrap(native.decode(data, enc || 'utf8')); },
    concat: function (list) { return wrap(native.concat(list || [])); },
    alloc: function (n) { return wrap(native.alloc(n)); },
    isBuffer: function (v) { return v instanceof Uint8Array; },
  };

  var utils = {
    crypto: {
      md5: native.md5,
      sha1: native.sha1,
      sha256: native.sha256,
      base64Encode: native.base64Encode,
      base64Decode: native.base64Decode,
      aesEncrypt: buf(native.aesEncrypt),
      aesDecrypt: buf(native.aesDecrypt),
      rsaEncrypt: buf(native.rsaEncrypt),
      rsaDecrypt: buf(native.rsaDecrypt),
      randomBytes: buf(native.randomBytes),
    },
    buffer: {
      from: Buffer.from,
      bufToString: function (b, enc) { return native.encode(b, enc || 'utf8'); },
      concat: Buffer.concat,
      slice: buf(native.slice),
    },
    zlib: {
      gzip: promised(buf(native.gzip)),
      gunzip: promised(buf(native.gunzip)),
      deflate: promised(buf(native.deflate)),
      inflate: promised(buf(native.inflate)),
      brotliCompress: promised(buf(native.brotliCompress)),
      brotliDecompress: promised(buf(native.brotliDecompress)),
    },
    url: {
      encode: native.urlEncode,
      decode: native.urlDecode,
    },
    time: {
      now: native.now,
      sleep: function (ms) {
        return new Promise(function (resolve) { native.setTimeout(resolve, ms); });
      },
    },
  };

  function request(url, options, callback) {
    if (typeof options === 'function') {
      callback = options;
      options = {};
    }

    var resp, err;
    try {
      resp = native.request(String(url), options || {});
    } catch (e) {
      err = e;
    }

    if (typeof callback === 'function') {
      if (err) callback(err, null, null);
      else callback(null, resp, resp.body);
      return function () {};
    }

    return err ? Promise.reject(err) : Promise.resolve(resp);
  }

  globalThis.Buffer = Buffer;
  globalThis.setTimeout = native.setTimeout;
  globalThis.clearTimeout = native.clearTimer;
  globalThis.setInterval = native.setInterval;
  globalThis.clearInterval = native.clearTimer;
  globalThis.console = {
    log: logger('info'),
    info: logger('info'),
    debug: logger('debug'),
    warn: logger('warn'),
    error: logger('error'),
  };

  globalThis.lx = {
    version: '2.0.0',
    env: 'mobile',
    EVENT_NAMES: {
      request: 'request',
      response: 'response',
      inited: 'inited',
      updateAlert: 'updateAlert',
    },
    currentScriptInfo: info,
    on: native.on,
    send: native.send,
    request: request,
    utils: Object.freeze(utils),
    log: logger('info'),
    error: logger('error'),
  };

  return wrap;
})`
