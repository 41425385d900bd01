package commands

import (
	"testing"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
)

func TestParseAngles(t *testing.T) {
	if _, err := parseAngles("0.1, 0.2", 3); err == nil {
		t.Error("expected length error")
	}
	if _, err := parseAngles("0.1,x,0.3", 3); err == nil {
		t.Error("expected parse error")
	}
	v, err := parseAngles(" 0.1,-0.2 ,0.3", 3)
	if err != nil {
		t.Fatal(err)
	}
	if v[1] != -0.2 {
		t.Errorf("v = %v", v)
	}
}

func TestApplySet(t *testing.T) {
	m := joint.G1()
	v := m.Default()
	if err := applySet(m, v, "left_elbow=1.25"); err != nil {
		t.Fatal(err)
	}
	if err := applySet(m, v, "12=0.1"); err != nil {
		t.Fatal(err)
	}
	if v[18] != 1.25 || v[12] != 0.1 {
		t.Errorf("v[18] = %v, v[12] = %v", v[18], v[12])
	}
	for _, bad := range []string{"left_elbow", "tail=1", "99=1", "left_elbow=up"} {
		if err := applySet(m, v, bad); err == nil {
			t.Errorf("applySet(%q) succeeded", bad)
		}
	}
}

func TestLocalBrokerURL(t *testing.T) {
	tests := map[string]string{
		":1883":         "tcp://127.0.0.1:1883",
		"0.0.0.0:1884":  "tcp://127.0.0.1:1884",
		"10.0.0.2:1883": "tcp://10.0.0.2:1883",
		"no-port":       cli.DefaultMQTTURL,
		"[::]:1883":     "tcp://127.0.0.1:1883",
	}
	for addr, want := range tests {
		if got := localBrokerURL(addr); got != want {
			t.Errorf("localBrokerURL(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestValidateContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  cli.Context
		ok   bool
	}{
		{"empty", cli.Context{}, true},
		{"mimic reject", cli.Context{Format: "mimic", Policy: "reject", PublishRate: 30}, true},
		{"bad format", cli.Context{Format: "xml"}, false},
		{"bad policy", cli.Context{Policy: "ignore"}, false},
		{"negative rate", cli.Context{PublishRate: -1}, false},
		{"short default pose", cli.Context{DefaultAngles: []float64{0, 0}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(&tt.ctx)
			if (err == nil) != tt.ok {
				t.Errorf("validateContext = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestPanelHost(t *testing.T) {
	if got := panelHost(":8080"); got != "localhost:8080" {
		t.Errorf("panelHost(:8080) = %q", got)
	}
	if got := panelHost("127.0.0.1:8080"); got != "127.0.0.1:8080" {
		t.Errorf("panelHost = %q", got)
	}
}
