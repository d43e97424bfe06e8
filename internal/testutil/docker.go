// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package testutil holds Docker setup shared by the container-backed tests.
package testutil

import (
	"os"
	"strings"
)

// DetectReaperIssue checks if we need to disable the testcontainers reaper
// Returns true if reaper should be disabled (e.g., for Rancher Desktop)
func DetectReaperIssue() bool {
	// If already set, respect the user's choice
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") != "" {
		return os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "true"
	}

	// Check if DOCKER_HOST points to Rancher Desktop
	dockerHost := os.Getenv("DOCKER_HOST")
	if dockerHost != "" && strings.Contains(dockerHost, ".rd/docker.sock") {
		return true
	}

	// Check if Rancher Desktop socket exists (common path)
	if rdSocket := rancherSocket(); rdSocket != "" {
		if dockerHost == "" || strings.Contains(dockerHost, ".rd/docker.sock") {
			return true
		}
	}

	// Rancher Desktop uses the "rancher-desktop" context
	return os.Getenv("DOCKER_CONTEXT") == "rancher-desktop"
}

// PrepareDockerEnv disables the reaper and points DOCKER_HOST at Rancher
// Desktop when needed. It returns true when the reaper was disabled.
func PrepareDockerEnv() bool {
	disabled := DetectReaperIssue()
	if disabled {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	if os.Getenv("DOCKER_HOST") == "" {
		if rdSocket := rancherSocket(); rdSocket != "" {
			os.Setenv("DOCKER_HOST", "unix://"+rdSocket)
		}
	}
	return disabled
}

// SkipDocker reports whether Docker-based tests are disabled.
func SkipDocker() bool {
	return os.Getenv("SKIP_DOCKER_TESTS") == "true"
}

// DockerUnavailable reports whether err (or a recovered panic value) means
// there is no usable Docker daemon.
func DockerUnavailable(v any) bool {
	var msg string
	switch e := v.(type) {
	case error:
		msg = e.Error()
	case string:
		msg = e
	default:
		return false
	}
	return strings.Contains(msg, "Docker not found") || strings.Contains(msg, "rootless Docker")
}

func rancherSocket() string {
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir = os.Getenv("USERPROFILE") // Windows fallback
	}
	if homeDir == "" {
		return ""
	}
	rdSocket := homeDir + "/.rd/docker.sock"
	if _, err := os.Stat(rdSocket); err != nil {
		return ""
	}
	return rdSocket
}
