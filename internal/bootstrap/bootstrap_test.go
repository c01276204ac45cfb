package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/hatch/internal/host/hosttest"
	"github.com/atvirokodosprendimai/hatch/internal/installer"
)

func testService() Service {
	return Service{
		Name:        "hatch-app",
		Description: "hatch managed application",
		WorkingDir:  "/opt/hatch/app",
		ExecStart:   "/opt/hatch/app/start.sh",
	}
}

func TestRenderUnitFields(t *testing.T) {
	out, err := RenderUnit(testService())
	require.NoError(t, err)

	unit := string(out)
	assert.Contains(t, unit, "Description=hatch managed application")
	assert.Contains(t, unit, "After=network.target")
	assert.Contains(t, unit, "WorkingDirectory=/opt/hatch/app")
	assert.Contains(t, unit, "ExecStart=/opt/hatch/app/start.sh")
	assert.Contains(t, unit, "Restart=always")
	assert.Contains(t, unit, "User=root")
	assert.Contains(t, unit, "WantedBy=multi-user.target")
}

func TestRunStagesAndExecutesScript(t *testing.T) {
	f := &hosttest.Fake{}
	e := NewExecutor(f)
	art := &installer.Artifact{Body: []byte("#!/bin/sh\necho hi\n")}

	require.NoError(t, e.Run(context.Background(), 108, art))
	assert.Equal(t, art.Body, f.Files[scriptPath])
	require.Len(t, f.Execs, 1)
	assert.Equal(t, []string{"bash", scriptPath}, f.Execs[0])
}

func TestRunSurfacesScriptFailure(t *testing.T) {
	f := &hosttest.Fake{ExecErrs: map[int]error{0: errors.New("exit status 2")}}
	e := NewExecutor(f)

	err := e.Run(context.Background(), 108, &installer.Artifact{Body: []byte("#!/bin/sh\nexit 2\n")})
	assert.ErrorContains(t, err, "installer failed")
}

func TestEntrypointExists(t *testing.T) {
	f := &hosttest.Fake{ExistingPaths: map[string]bool{"/opt/hatch/app/start.sh": true}}
	e := NewExecutor(f)

	assert.True(t, e.EntrypointExists(context.Background(), 108, "/opt/hatch/app/start.sh"))
	assert.False(t, e.EntrypointExists(context.Background(), 108, "/opt/hatch/app/missing.sh"))
}

func TestRegisterInstallsAndActivates(t *testing.T) {
	f := &hosttest.Fake{}
	e := NewExecutor(f)

	require.NoError(t, e.Register(context.Background(), 108, testService()))

	unit := string(f.Files["/etc/systemd/system/hatch-app.service"])
	assert.Contains(t, unit, "Restart=always")

	require.Len(t, f.Execs, 2)
	assert.Equal(t, []string{"systemctl", "daemon-reload"}, f.Execs[0])
	assert.Equal(t, []string{"systemctl", "enable", "--now", "hatch-app"}, f.Execs[1])
}
