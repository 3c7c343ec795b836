package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

const tcpSource = "source:\n  addr: '192.168.0.222:55555'\n"

func TestLoad_RequiresAddrForTCP(t *testing.T) {
	path := writeTempConfig(t, "source: {}\n")
	_, err := Load(path)
	requireErrEq(t, err, "source.addr is required when source.kind is 'tcp'")
}

func TestLoad_EmptyFileNeedsSource(t *testing.T) {
	path := writeTempConfig(t, "")
	_, err := Load(path)
	requireErrEq(t, err, "source.addr is required when source.kind is 'tcp'")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, tcpSource)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Source.Kind != SourceTCP {
		t.Fatalf("kind=%q want tcp", cfg.Source.Kind)
	}
	if cfg.Source.ReconnectDelay != 1*time.Second {
		t.Fatalf("reconnect_delay=%s want 1s", cfg.Source.ReconnectDelay)
	}
	if len(cfg.Sessions) != 1 || cfg.Sessions[0].Name != "Local" || cfg.Sessions[0].Mode != "local" {
		t.Fatalf("sessions=%+v want one local session", cfg.Sessions)
	}
	if cfg.Web.Listen != ":8080" {
		t.Fatalf("web.listen=%q want :8080", cfg.Web.Listen)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("log=%+v want info/text", cfg.Log)
	}
	if cfg.Replay.Speed != 1 {
		t.Fatalf("replay.speed=%v want 1", cfg.Replay.Speed)
	}
	if cfg.Indicator.Pulse != 50*time.Millisecond {
		t.Fatalf("indicator.pulse=%s want 50ms", cfg.Indicator.Pulse)
	}
}

func TestLoad_SerialDefaultsBaud(t *testing.T) {
	path := writeTempConfig(t, "source:\n  kind: serial\n  device: /dev/ttyUSB0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Source.Baud != 115200 {
		t.Fatalf("baud=%d want 115200", cfg.Source.Baud)
	}
}

func TestLoad_SourceValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "UnknownKind",
			body: "source:\n  kind: usb\n",
			want: "source.kind must be one of 'tcp', 'serial', 'replay'",
		},
		{
			name: "SerialRequiresDevice",
			body: "source:\n  kind: serial\n",
			want: "source.device is required when source.kind is 'serial'",
		},
		{
			name: "SerialNegativeBaud",
			body: "source:\n  kind: serial\n  device: /dev/ttyS0\n  baud: -9600\n",
			want: "source.baud must be > 0",
		},
		{
			name: "ReplayRequiresPath",
			body: "source:\n  kind: replay\n",
			want: "replay.path is required when source.kind is 'replay'",
		},
		{
			name: "ReplayNegativeSpeed",
			body: "source:\n  kind: replay\nreplay:\n  path: ./x.log\n  speed: -1\n",
			want: "replay.speed must be > 0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.body)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_RecordRequiresPath(t *testing.T) {
	path := writeTempConfig(t, tcpSource+"record:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "record.path is required when record.enable is true")
}

func TestLoad_RecordAndReplayMutuallyExclusive(t *testing.T) {
	path := writeTempConfig(t, "source:\n  kind: replay\nreplay:\n  path: ./b.log\nrecord:\n  enable: true\n  path: ./a.log\n")
	_, err := Load(path)
	requireErrEq(t, err, "record cannot be used with source.kind=replay")
}

func TestLoad_ForwardRequiresDest(t *testing.T) {
	path := writeTempConfig(t, tcpSource+"forward:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "forward.dest is required when forward.enable is true")
}

func TestLoad_Sessions(t *testing.T) {
	path := writeTempConfig(t, tcpSource+"sessions:\n  - name: Local\n    mode: local\n  - mode: Relay\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Sessions) != 2 {
		t.Fatalf("sessions=%d want 2", len(cfg.Sessions))
	}
	if cfg.Sessions[1].Name != "relay" || cfg.Sessions[1].Mode != "relay" {
		t.Fatalf("sessions[1]=%+v want relay/relay", cfg.Sessions[1])
	}
}

func TestLoad_SessionValidation(t *testing.T) {
	cases := []struct {
		name  string
		extra string
		want  string
	}{
		{
			name:  "UnknownMode",
			extra: "sessions:\n  - name: x\n    mode: remote\n",
			want:  `sessions[0].mode: unknown session mode "remote"`,
		},
		{
			name:  "DuplicateName",
			extra: "sessions:\n  - name: a\n  - name: a\n    mode: relay\n",
			want:  `sessions[1].name "a" is duplicated`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tcpSource+tc.extra)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_LogValidation(t *testing.T) {
	path := writeTempConfig(t, tcpSource+"log:\n  format: xml\n")
	_, err := Load(path)
	requireErrEq(t, err, "log.format must be one of 'text', 'json', 'logfmt'")

	path = writeTempConfig(t, tcpSource+"log:\n  level: chatty\n")
	_, err = Load(path)
	if err == nil || !strings.HasPrefix(err.Error(), "log.level: ") {
		t.Fatalf("err=%v want log.level error", err)
	}
}

func TestLoad_IndicatorRequiresGPIO(t *testing.T) {
	path := writeTempConfig(t, tcpSource+"indicator:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "indicator.gpio must be > 0 when indicator.enable is true")
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, tcpSource+"  mode: relay\n")
	_, err := Load(path)
	requireErrEq(t, err, "config contains unknown fields: field mode not found in type config.SourceConfig")
}

func TestValidate_AfterOverride(t *testing.T) {
	path := writeTempConfig(t, tcpSource)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg.Source.Kind = SourceReplay
	requireErrEq(t, cfg.Validate(), "replay.path is required when source.kind is 'replay'")

	cfg.Replay.Path = "./obs.log"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}
