package main

import (
	"strings"
	"testing"
)

func TestParseArgsHelp(t *testing.T) {
	cfg, err := parseArgs([]string{"-h"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.help {
		t.Error("expected help to be set")
	}
}

func TestParseArgsMissingScaleArgument(t *testing.T) {
	_, err := parseArgs([]string{"-s"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got, want := err.Error(), "Error: -s requires an argument"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestParseArgsInvalidScale(t *testing.T) {
	_, err := parseArgs([]string{"-s", "abc"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got, want := err.Error(), "Invalid scale factor"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestParseArgsMissingGeometry(t *testing.T) {
	_, err := parseArgs([]string{"-g"})
	if err == nil || err.Error() != "Error: -g requires an argument" {
		t.Errorf("got %v, want missing -g error", err)
	}
}

func TestParseArgsUnknownFiletype(t *testing.T) {
	_, err := parseArgs([]string{"-t", "bmp"})
	if err == nil || err.Error() != "Error: invalid filetype: bmp" {
		t.Errorf("got %v, want invalid filetype error", err)
	}
}

func TestParseArgsMissingFiletype(t *testing.T) {
	_, err := parseArgs([]string{"-t"})
	if err == nil || err.Error() != "Error: -t requires an argument" {
		t.Errorf("got %v, want missing -t error", err)
	}
}

func TestParseArgsQualityOutOfRange(t *testing.T) {
	_, err := parseArgs([]string{"-q", "150"})
	if err == nil || err.Error() != "Error: JPEG quality must be between 0 and 100" {
		t.Errorf("got %v, want quality range error", err)
	}
}

func TestParseArgsQualityNotNumeric(t *testing.T) {
	_, err := parseArgs([]string{"-q", "high"})
	if err == nil || err.Error() != "Invalid quality value" {
		t.Errorf("got %v, want invalid quality value error", err)
	}
}

// TestScenarioS4 mirrors §8's S4: -l 10 must fail with the exact PNG
// compression level error.
func TestScenarioS4(t *testing.T) {
	_, err := parseArgs([]string{"-l", "10"})
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "Error: PNG compression level must be between 0 and 9"; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestParseArgsTooManyPositionals(t *testing.T) {
	_, err := parseArgs([]string{"a.png", "b.png"})
	if err == nil || err.Error() != "Error: too many arguments" {
		t.Errorf("got %v, want too many arguments error", err)
	}
}

func TestParseArgsSinglePositional(t *testing.T) {
	cfg, err := parseArgs([]string{"out.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.hasPath || cfg.outPath != "out.png" {
		t.Errorf("cfg = %+v, want outPath=out.png", cfg)
	}
}

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.scale != 1.0 || cfg.quality != 80 || cfg.level != 6 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestUsageText(t *testing.T) {
	if !strings.Contains(usage, "Usage: grim [options...] [output-file]") {
		t.Error("usage text missing required usage line")
	}
	if !strings.Contains(usage, "-t png|ppm|jpeg") {
		t.Error("usage text missing required -t line")
	}
}
