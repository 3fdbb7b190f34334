package automation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zigbee-node/internal/aps"
	"zigbee-node/internal/node"
	"zigbee-node/internal/radio"
)

func testEngine(t *testing.T, scriptDir string) (*Engine, *node.Node) {
	t.Helper()
	device, err := aps.NewDevice(&aps.Endpoint{
		ID:        1,
		ProfileID: aps.ProfileHA,
		Clusters: []aps.Cluster{
			{ID: 0x0006, Direction: aps.Input, Handler: aps.HandlerFunc(func(*aps.Frame, *aps.Cluster) (*aps.Frame, error) { return nil, nil })},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	n := node.New(device, radio.NewPipe(), node.NewValues(), node.NewEventBus(nil), nil)
	return NewEngine(n, scriptDir, nil), n
}

func TestRunLuaCode(t *testing.T) {
	e, n := testEngine(t, t.TempDir())
	res := e.RunLuaCode(`
		node.log("starting")
		node.set("target", 21.5)
		node.log("done")
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 2 || res.Logs[0] != "starting" || res.Logs[1] != "done" {
		t.Errorf("logs %v", res.Logs)
	}
	if v, _ := n.Values().Load("target"); v.(float64) != 21.5 {
		t.Errorf("value %v", v)
	}
}

func TestRunLuaCodeError(t *testing.T) {
	e, _ := testEngine(t, t.TempDir())
	res := e.RunLuaCode(`error("deliberate")`)
	if res.OK {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "deliberate") {
		t.Errorf("error %q", res.Error)
	}
}

func TestRunLuaCodeSandbox(t *testing.T) {
	e, _ := testEngine(t, t.TempDir())
	res := e.RunLuaCode(`
		if os ~= nil then error("os leaked") end
		if io ~= nil then error("io leaked") end
		if require ~= nil then error("require leaked") end
	`)
	if !res.OK {
		t.Errorf("sandbox hole: %s", res.Error)
	}
}

func TestRunLuaCodeGet(t *testing.T) {
	e, n := testEngine(t, t.TempDir())
	n.Values().Store("onoff/state", true)
	res := e.RunLuaCode(`
		if node.get("onoff/state") ~= true then error("wrong value") end
		if node.get("missing") ~= nil then error("phantom value") end
	`)
	if !res.OK {
		t.Errorf("run failed: %s", res.Error)
	}
}

func TestScriptReactsToValueChange(t *testing.T) {
	dir := t.TempDir()
	script := `
node.on_change("door", function(event)
	node.set("copied", event.value)
end)
`
	if err := os.WriteFile(filepath.Join(dir, "copy.lua"), []byte(script), 0644); err != nil {
		t.Fatal(err)
	}

	e, n := testEngine(t, dir)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	n.Values().Store("door", true)
	n.Values().Store("window", true) // different key, must not match

	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, ok := n.Values().Load("copied"); ok {
			if v.(bool) != true {
				t.Errorf("copied %v", v)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("handler never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartScriptBadCode(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.lua"), []byte(`this is not lua`), 0644); err != nil {
		t.Fatal(err)
	}
	e, _ := testEngine(t, dir)
	// Start logs the failure and continues; the broken script must not be
	// registered.
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	e.mu.Lock()
	running := len(e.vms)
	e.mu.Unlock()
	if running != 0 {
		t.Errorf("%d scripts running, want 0", running)
	}
}

func TestReloadMissingScript(t *testing.T) {
	e, _ := testEngine(t, t.TempDir())
	if err := e.ReloadScript("nope.lua"); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestMissingScriptDir(t *testing.T) {
	e, _ := testEngine(t, filepath.Join(t.TempDir(), "does-not-exist"))
	if err := e.Start(); err != nil {
		t.Errorf("missing dir should not fail startup: %v", err)
	}
	e.Stop()
}
