package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	maxConcurrentDownloads = 3
	retryLimit             = 3
	retryDelay             = 3 * time.Second
	inactivityTimeout      = 30 * time.Second
	rateLimit              = 0
	pluginTimeout          = 15 * time.Second
	requestDelay           = 5 * time.Second
	cacheTTL               = 5 * time.Minute
	disableCache           = false
	proxyTimeout           = 15 * time.Second
	debugLogging           = false
)

var (
	downloadDir  = filepath.Join(xdg.UserDirs.Music, configFileName)
	pluginDir    = filepath.Join(xdg.DataHome, configFileName, "plugins")
	databasePath = filepath.Join(xdg.DataHome, configFileName, configFileName+".db")
	logFile      = filepath.Join(xdg.StateHome, configFileName, configFileName+".log")
)
