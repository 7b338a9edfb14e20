package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestCreateDefaultConfigFile(t *testing.T) {
	// find out where the sample config lives
	_, path, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("Failed finding config file path")
	}
	sampleConfigFile := filepath.Join(filepath.Dir(path), "..", "..", "sample-crowd.conf")

	// Setup a temporary directory
	tmpDir, err := ioutil.TempDir("", "crowd")
	if err != nil {
		t.Fatalf("Failed creating a temporary directory: %v", err)
	}
	testpath := filepath.Join(tmpDir, "test.conf")

	// copy config file to location of crowd binary
	data, err := ioutil.ReadFile(sampleConfigFile)
	if err != nil {
		t.Fatalf("Failed reading sample config file: %v", err)
	}
	appPath, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		t.Fatalf("Failed obtaining app path: %v", err)
	}
	tmpConfigFile := filepath.Join(appPath, "sample-crowd.conf")
	err = ioutil.WriteFile(tmpConfigFile, data, 0644)
	if err != nil {
		t.Fatalf("Failed copying sample config file: %v", err)
	}

	// Clean-up
	defer func() {
		os.Remove(testpath)
		os.Remove(tmpConfigFile)
		os.Remove(tmpDir)
	}()

	err = createDefaultConfigFile(testpath)
	if err != nil {
		t.Fatalf("Failed to create a default config file: %v", err)
	}

	content, err := ioutil.ReadFile(testpath)
	if err != nil {
		t.Fatalf("Failed to read generated config file: %v", err)
	}
	for _, key := range []string{"rpcuser=", "rpcpass="} {
		if !strings.Contains(string(content), key) {
			t.Errorf("Generated config file is missing a %s entry", key)
		}
	}
}

func TestValidateAllowIP(t *testing.T) {
	valid := []string{
		"127.0.0.1",
		"::1",
		"10.0.0.0/8",
		"192.168.1.0/255.255.255.0",
		"2001:db8::/32",
	}
	for _, allowIP := range valid {
		if err := validateAllowIP(allowIP); err != nil {
			t.Errorf("validateAllowIP(%q) unexpectedly failed: %v", allowIP, err)
		}
	}

	invalid := []string{
		"",
		"not-an-ip",
		"10.0.0.0/potato",
		"10.0.0/8",
		"1.2.3.4/255.255.bad.0",
	}
	for _, allowIP := range invalid {
		if err := validateAllowIP(allowIP); err == nil {
			t.Errorf("validateAllowIP(%q) unexpectedly succeeded", allowIP)
		}
	}
}
