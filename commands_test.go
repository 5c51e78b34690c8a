package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tunedl/internal/events"
	"github.com/NamanBalaji/tunedl/internal/status"
)

func TestParseStatuses(t *testing.T) {
	got, err := parseStatuses("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseStatuses("pending, failed")
	require.NoError(t, err)
	assert.Equal(t, []status.Status{status.Pending, status.Failed}, got)

	_, err = parseStatuses("pending,bogus")
	assert.Error(t, err)
}

func TestTaskOf(t *testing.T) {
	id := uuid.New()

	assert.Equal(t, id, taskOf(events.Event{Payload: events.Progress{TaskID: id}}))
	assert.Equal(t, id, taskOf(events.Event{Payload: events.Completed{TaskID: id}}))
	assert.Equal(t, id, taskOf(events.Event{Payload: events.Failed{TaskID: id}}))
	assert.Equal(t, uuid.Nil, taskOf(events.Event{Payload: "other"}))
}

func TestCommandsTable(t *testing.T) {
	for name, cmd := range commands {
		if (cmd.run == nil) == (cmd.standalone == nil) {
			t.Errorf("command %q must set exactly one of run and standalone", name)
		}
	}
}
