package envutil

import (
	"testing"
	"time"
)

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("AGG_TEST_INT", "12")
	if got := GetEnvAsInt("AGG_TEST_INT", 3, nil); got != 12 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("AGG_TEST_INT", "twelve")
	if got := GetEnvAsInt("AGG_TEST_INT", 3, nil); got != 3 {
		t.Fatalf("unparsable value must fall back, got %d", got)
	}
	if got := GetEnvAsInt("AGG_TEST_INT_MISSING", 5, nil); got != 5 {
		t.Fatalf("missing value must fall back, got %d", got)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("AGG_TEST_DUR", "750ms")
	if got := GetEnvAsDuration("AGG_TEST_DUR", time.Second, nil); got != 750*time.Millisecond {
		t.Fatalf("got %s", got)
	}
	t.Setenv("AGG_TEST_DUR", "250")
	if got := GetEnvAsDuration("AGG_TEST_DUR", time.Second, nil); got != 250*time.Millisecond {
		t.Fatalf("bare millis: got %s", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("AGG_TEST_BOOL", "off")
	if GetEnvAsBool("AGG_TEST_BOOL", true, nil) {
		t.Fatalf("off must parse as false")
	}
	if !GetEnvAsBool("AGG_TEST_BOOL_MISSING", true, nil) {
		t.Fatalf("missing must fall back")
	}
}

func TestGetEnvBlankFallsBack(t *testing.T) {
	t.Setenv("AGG_TEST_STR", "   ")
	if got := GetEnv("AGG_TEST_STR", "dflt", nil); got != "dflt" {
		t.Fatalf("blank value must fall back, got %q", got)
	}
	t.Setenv("AGG_TEST_STR", " value ")
	if got := GetEnv("AGG_TEST_STR", "dflt", nil); got != "value" {
		t.Fatalf("value must be trimmed, got %q", got)
	}
}
