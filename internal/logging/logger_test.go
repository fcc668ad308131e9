package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/sabouaram/drvshell/internal/logging"
)

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logging.New(buf)
	l.SetLevel(logrus.WarnLevel)

	l.Info("should not appear", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}

	l.Warning("should appear", nil)
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warning to be logged, got %q", buf.String())
	}
}

func TestFieldsAreCloned(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logging.New(buf)
	l.SetFields(logging.Fields{"driver": "demo"})

	clone := l.Clone()
	clone.SetFields(logging.Fields{"driver": "other"})

	if l.GetFields()["driver"] != "demo" {
		t.Fatal("mutating clone fields leaked back into original logger")
	}
}

func TestSetFormatSwitchesToJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logging.New(buf)
	l.SetFormat("json")

	l.Info("should be json", nil)
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected JSON-formatted entry, got %q", buf.String())
	}
}

func TestFatalDoesNotExitProcess(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logging.New(buf)

	l.Fatal("broker shutting down", nil)
	if !strings.Contains(buf.String(), "broker shutting down") {
		t.Fatal("expected fatal message to be written")
	}
}
