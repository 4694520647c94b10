package blog

import (
	"testing"

	"github.com/open-mpic/mpic-core-go/internal/test"
)

func TestNewRejectsNilWriter(t *testing.T) {
	_, err := New(nil, infoLevel, infoLevel)
	test.AssertError(t, err, "New(nil writer)")
}

func TestGetDefaultsToStdoutOnly(t *testing.T) {
	l := Get()
	test.AssertNotNil(t, l, "Get()")
	if _, ok := l.(*stdoutOnly); !ok {
		t.Fatalf("expected the default logger to be *stdoutOnly before Set is called, got %T", l)
	}
}

func TestSetInstallsLoggerOnce(t *testing.T) {
	first := &stubLogger{}
	test.AssertNotError(t, Set(first), "first Set()")
	test.AssertEquals(t, Get(), Logger(first))

	err := Set(&stubLogger{})
	test.AssertError(t, err, "second Set() should be rejected")
}

type stubLogger struct{}

func (stubLogger) Debug(string)                    {}
func (stubLogger) Info(string)                     {}
func (stubLogger) Warning(string)                  {}
func (stubLogger) Err(string)                      {}
func (stubLogger) Audit(string)                    {}
func (stubLogger) AuditObject(string, interface{}) {}
