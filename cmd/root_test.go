// File: cmd/root_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBrowserArgs(t *testing.T) {
	t.Run("empty input yields nil", func(t *testing.T) {
		assert.Nil(t, parseBrowserArgs(nil))
	})

	t.Run("key=value and bare flags", func(t *testing.T) {
		flags := parseBrowserArgs([]string{"--disable-gpu", "--lang=en-US", "no-sandbox"})
		assert.Equal(t, true, flags["disable-gpu"])
		assert.Equal(t, "en-US", flags["lang"])
		assert.Equal(t, true, flags["no-sandbox"])
	})
}

func TestRootCommandStructure(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"act", "perceive", "remember", "serve", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
