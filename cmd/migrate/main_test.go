package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/estate-crm/pkg/logging"
)

type fakeMigrator struct {
	version uint
	upErr   error
	steps   []int
	forced  []int
}

func (f *fakeMigrator) Up() error { return f.upErr }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	if f.version == 0 {
		return 0, false, migrate.ErrNilVersion
	}
	return f.version, false, nil
}

func (f *fakeMigrator) Force(v int) error {
	f.forced = append(f.forced, v)
	return nil
}

func TestRunUpToleratesNoChange(t *testing.T) {
	m := &fakeMigrator{version: 1, upErr: migrate.ErrNoChange}
	require.NoError(t, run(m, nil, logging.Default()))

	m.upErr = errors.New("relation leads already exists")
	assert.ErrorContains(t, run(m, []string{"up"}, logging.Default()), "migrate up")
}

func TestRunDownSteps(t *testing.T) {
	m := &fakeMigrator{}
	require.NoError(t, run(m, []string{"down"}, logging.Default()))
	require.NoError(t, run(m, []string{"down", "2"}, logging.Default()))
	assert.Equal(t, []int{-1, -2}, m.steps)

	assert.Error(t, run(m, []string{"down", "0"}, logging.Default()))
	assert.Error(t, run(m, []string{"down", "all"}, logging.Default()))
}

func TestRunForce(t *testing.T) {
	m := &fakeMigrator{version: 1}
	require.NoError(t, run(m, []string{"force", "1"}, logging.Default()))
	assert.Equal(t, []int{1}, m.forced)

	assert.Error(t, run(m, []string{"force"}, logging.Default()))
	assert.Error(t, run(m, []string{"force", "x"}, logging.Default()))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	assert.ErrorContains(t, run(&fakeMigrator{}, []string{"sideways"}, logging.Default()), "unknown command")
}
