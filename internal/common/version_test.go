package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionDefault(t *testing.T) {
	assert.Equal(t, "dev", GetVersion())
}

func TestGetFullVersionIncludesBuildMetadata(t *testing.T) {
	full := GetFullVersion()
	assert.Contains(t, full, Version)
	assert.Contains(t, full, Build)
	assert.Contains(t, full, GitCommit)
}
