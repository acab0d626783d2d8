// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/qmm/pkg/errutil"
)

func TestGames_BuiltinTableParses(t *testing.T) {
	games, err := Games()
	require.NoError(t, err)
	require.NotEmpty(t, games)

	for i := 1; i < len(games); i++ {
		assert.Less(t, games[i-1].Name, games[i].Name, "games are sorted by name")
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	g, err := Lookup("q3a")
	require.NoError(t, err)
	assert.Equal(t, "Q3A", g.Name)
	assert.True(t, g.VMSupported())
	assert.Equal(t, "vm/qagame.qvm", g.QVM)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("doom3")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "GAME_UNKNOWN")
}

func TestDetect_ByModuleFilename(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{file: "/srv/q3/baseq3/qagamex86_64.so", want: "Q3A"},
		{file: `C:\Games\Quake3\baseq3\QAGAMEX86.DLL`, want: "Q3A"},
		{file: "/srv/rtcw/main/qagame.mp.i386.so", want: "RTCWMP"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			g, err := Detect(tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Name)
		})
	}

	_, err := Detect("/srv/other/libfoo.so")
	require.Error(t, err)
}

func TestGame_ModuleNames(t *testing.T) {
	g, err := Lookup("Q3A")
	require.NoError(t, err)

	assert.Equal(t, "qagamex86_64.so", g.moduleNameFor("linux", "amd64"))
	assert.Equal(t, "qagamex86.dll", g.moduleNameFor("windows", "386"))
	assert.Empty(t, g.moduleNameFor("plan9", "amd64"))

	if name := g.ModuleName(); name != "" {
		assert.Equal(t, "qmm_"+name, g.FallbackModuleName())
	}
}

func TestGame_RTCWHasNoVM(t *testing.T) {
	g, err := Lookup("RTCWMP")
	require.NoError(t, err)
	assert.False(t, g.VMSupported())
	assert.Equal(t, 14, g.MustEngineMsg(MsgFSClose))
}

func TestGame_MessageNames(t *testing.T) {
	g, err := Lookup("Q3A")
	require.NoError(t, err)

	assert.Equal(t, "GAME_CLIENT_CONNECT", g.MessageName(ToMod, 2))
	assert.Equal(t, "G_FS_FOPEN_FILE", g.MessageName(ToEngine, 10))
	assert.Equal(t, "mod(99)", g.MessageName(ToMod, 99))
	assert.Equal(t, "engine(999)", g.MessageName(ToEngine, 999))

	code, ok := g.ModMsg(MsgClientConnect)
	assert.True(t, ok)
	assert.Equal(t, 2, code)
	_, ok = g.EngineMsg("G_NOT_A_THING")
	assert.False(t, ok)
}

func TestGame_PointerArgs(t *testing.T) {
	g, err := Lookup("Q3A")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, g.PointerArgs(g.MustEngineMsg(MsgFSOpen)))
	assert.Equal(t, []int{0, 3}, g.PointerArgs(g.MustEngineMsg("G_LOCATE_GAME_DATA")))
	assert.Nil(t, g.PointerArgs(g.MustEngineMsg("G_MILLISECONDS")))
}

func TestGame_MustMsgPanicsOnUnknown(t *testing.T) {
	g, err := Lookup("Q3A")
	require.NoError(t, err)
	assert.Panics(t, func() { g.MustEngineMsg("G_NOPE") })
	assert.Panics(t, func() { g.MustModMsg("GAME_NOPE") })
}

func TestParseGames_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "empty", yaml: ""},
		{name: "bad yaml", yaml: "- name: [\n"},
		{name: "missing name", yaml: "- native: {linux: a.so}\n"},
		{name: "missing native", yaml: "- name: X\n"},
		{
			name: "missing engine message",
			yaml: `- name: X
  native: {linux: x.so}
  engine: {G_PRINT: 0}
  mod: {GAME_INIT: 0, GAME_SHUTDOWN: 1, GAME_CLIENT_CONNECT: 2}
`,
		},
		{
			name: "pointer index out of range",
			yaml: `- name: X
  native: {linux: x.so}
  engine: {G_PRINT: 0, G_ERROR: 1, G_FS_FOPEN_FILE: 2, G_FS_READ: 3, G_FS_FCLOSE_FILE: 4}
  mod: {GAME_INIT: 0, GAME_SHUTDOWN: 1, GAME_CLIENT_CONNECT: 2}
  pointers: {G_PRINT: [13]}
`,
		},
		{
			name: "duplicate",
			yaml: `- name: X
  native: {linux: x.so}
  engine: {G_PRINT: 0, G_ERROR: 1, G_FS_FOPEN_FILE: 2, G_FS_READ: 3, G_FS_FCLOSE_FILE: 4}
  mod: {GAME_INIT: 0, GAME_SHUTDOWN: 1, GAME_CLIENT_CONNECT: 2}
- name: x
  native: {linux: y.so}
  engine: {G_PRINT: 0, G_ERROR: 1, G_FS_FOPEN_FILE: 2, G_FS_READ: 3, G_FS_FCLOSE_FILE: 4}
  mod: {GAME_INIT: 0, GAME_SHUTDOWN: 1, GAME_CLIENT_CONNECT: 2}
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGames([]byte(tt.yaml))
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "GAME_TABLE_INVALID")
		})
	}
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "mod", ToMod.String())
	assert.Equal(t, "engine", ToEngine.String())
}
