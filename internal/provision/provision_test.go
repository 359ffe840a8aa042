package provision

import (
	"reflect"
	"testing"
)

func TestLaunchOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    LaunchOptions
		wantErr bool
	}{
		{"empty", LaunchOptions{}, false},
		{"relative targets", LaunchOptions{StdoutPath: "tmp/out.fifo", StderrPath: "tmp/out.fifo"}, false},
		{"absolute target", LaunchOptions{StdoutPath: "/tmp/out"}, true},
		{"escaping target", LaunchOptions{StderrPath: "../../etc/passwd"}, true},
		{"parent only", LaunchOptions{StdoutPath: ".."}, true},
		{"good env", LaunchOptions{Environment: map[string]string{"FOO": "bar"}}, false},
		{"empty env key", LaunchOptions{Environment: map[string]string{"": "x"}}, true},
		{"env key with equals", LaunchOptions{Environment: map[string]string{"A=B": "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLaunchOptions_EnvironmentList(t *testing.T) {
	opts := LaunchOptions{Environment: map[string]string{"B": "2", "A": "1", "C": "x=y"}}

	got := opts.EnvironmentList()
	want := []string{"A=1", "B=2", "C=x=y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EnvironmentList() = %v, want %v", got, want)
	}
}

func TestDevice_IsBooted(t *testing.T) {
	var nilDev *Device
	if nilDev.IsBooted() {
		t.Error("nil device should not be booted")
	}
	if (&Device{State: StateBooting}).IsBooted() {
		t.Error("booting device should not be booted")
	}
	if !(&Device{State: StateBooted}).IsBooted() {
		t.Error("booted device should be booted")
	}
}
