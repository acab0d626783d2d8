// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package engine describes the games the host can front and wraps the
// engine's syscall entry point: message numbering, default module names,
// engine-side file access and the console.
package engine

import (
	_ "embed"
	"fmt"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/qmm/pkg/qmmapi"
)

//go:embed games.yaml
var builtinGames []byte

// Message names the host itself relies on. Every game must define them.
const (
	MsgPrint         = "G_PRINT"
	MsgError         = "G_ERROR"
	MsgFSOpen        = "G_FS_FOPEN_FILE"
	MsgFSRead        = "G_FS_READ"
	MsgFSClose       = "G_FS_FCLOSE_FILE"
	MsgGameInit      = "GAME_INIT"
	MsgGameShutdown  = "GAME_SHUTDOWN"
	MsgClientConnect = "GAME_CLIENT_CONNECT"
)

// VMExt is the extension of QVM bytecode modules.
const VMExt = ".qvm"

// fallbackPrefix is prepended to the default module name to find the
// original mod after the host has been installed in its place.
const fallbackPrefix = "qmm_"

var requiredEngine = []string{MsgPrint, MsgError, MsgFSOpen, MsgFSRead, MsgFSClose}

var requiredMod = []string{MsgGameInit, MsgGameShutdown, MsgClientConnect}

// Direction identifies which side a call originates from.
type Direction int

// Call directions.
const (
	// ToMod is an engine call into the mod (vmMain).
	ToMod Direction = iota
	// ToEngine is a mod call into the engine (syscall).
	ToEngine
)

func (d Direction) String() string {
	if d == ToEngine {
		return "engine"
	}
	return "mod"
}

// Game is one supported game and its engine contract.
type Game struct {
	Name     string            `yaml:"name"`
	Title    string            `yaml:"title"`
	Native   map[string]string `yaml:"native"`
	QVM      string            `yaml:"qvm,omitempty"`
	Engine   map[string]int    `yaml:"engine"`
	Mod      map[string]int    `yaml:"mod"`
	Pointers map[string][]int  `yaml:"pointers,omitempty"`

	engineNames map[int]string
	modNames    map[int]string
	pointers    map[int][]int
}

// ParseGames parses and validates a game table.
func ParseGames(data []byte) ([]*Game, error) {
	if len(data) == 0 {
		return nil, oops.Code("GAME_TABLE_INVALID").Errorf("game table is empty")
	}

	var games []*Game
	if err := yaml.Unmarshal(data, &games); err != nil {
		return nil, oops.Code("GAME_TABLE_INVALID").Wrapf(err, "invalid YAML")
	}

	seen := make(map[string]bool, len(games))
	for _, g := range games {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToUpper(g.Name)
		if seen[key] {
			return nil, oops.Code("GAME_TABLE_INVALID").With("game", g.Name).Errorf("duplicate game %q", g.Name)
		}
		seen[key] = true
		g.index()
	}
	return games, nil
}

// Validate checks that the game defines everything the host calls.
func (g *Game) Validate() error {
	if g.Name == "" {
		return oops.Code("GAME_TABLE_INVALID").Errorf("game name is required")
	}
	errb := oops.Code("GAME_TABLE_INVALID").With("game", g.Name)
	if len(g.Native) == 0 {
		return errb.Errorf("native module names are required")
	}
	for _, name := range requiredEngine {
		if _, ok := g.Engine[name]; !ok {
			return errb.With("message", name).Errorf("engine message %s is required", name)
		}
	}
	for _, name := range requiredMod {
		if _, ok := g.Mod[name]; !ok {
			return errb.With("message", name).Errorf("mod message %s is required", name)
		}
	}
	for name, idx := range g.Pointers {
		if _, ok := g.Engine[name]; !ok {
			return errb.With("message", name).Errorf("pointer table names unknown engine message %s", name)
		}
		for _, i := range idx {
			if i < 0 || i >= qmmapi.SyscallArgCount {
				return errb.With("message", name).Errorf("pointer argument index %d out of range", i)
			}
		}
	}
	return nil
}

func (g *Game) index() {
	g.engineNames = make(map[int]string, len(g.Engine))
	for name, code := range g.Engine {
		g.engineNames[code] = name
	}
	g.modNames = make(map[int]string, len(g.Mod))
	for name, code := range g.Mod {
		g.modNames[code] = name
	}
	g.pointers = make(map[int][]int, len(g.Pointers))
	for name, idx := range g.Pointers {
		g.pointers[g.Engine[name]] = idx
	}
}

// ModuleName returns the engine's default native module filename for the
// running platform, or "" when the game has none.
func (g *Game) ModuleName() string {
	return g.moduleNameFor(runtime.GOOS, runtime.GOARCH)
}

func (g *Game) moduleNameFor(goos, goarch string) string {
	if name, ok := g.Native[goos+"/"+goarch]; ok {
		return name
	}
	return g.Native[goos]
}

// FallbackModuleName is the name a renamed original module is expected
// under once the host has taken its place: "qmm_" + ModuleName().
func (g *Game) FallbackModuleName() string {
	if name := g.ModuleName(); name != "" {
		return fallbackPrefix + name
	}
	return ""
}

// VMSupported reports whether the engine can run QVM mods.
func (g *Game) VMSupported() bool {
	return g.QVM != ""
}

// EngineMsg returns the code of an engine syscall.
func (g *Game) EngineMsg(name string) (int, bool) {
	code, ok := g.Engine[name]
	return code, ok
}

// ModMsg returns the code of a vmMain command.
func (g *Game) ModMsg(name string) (int, bool) {
	code, ok := g.Mod[name]
	return code, ok
}

// MustEngineMsg returns the code of a required engine syscall.
func (g *Game) MustEngineMsg(name string) int {
	code, ok := g.Engine[name]
	if !ok {
		panic(fmt.Sprintf("engine: game %s has no engine message %s", g.Name, name))
	}
	return code
}

// MustModMsg returns the code of a required vmMain command.
func (g *Game) MustModMsg(name string) int {
	code, ok := g.Mod[name]
	if !ok {
		panic(fmt.Sprintf("engine: game %s has no mod message %s", g.Name, name))
	}
	return code
}

// MessageName names cmd for logs. Unknown codes render as "engine(42)".
func (g *Game) MessageName(dir Direction, cmd int) string {
	names := g.modNames
	if dir == ToEngine {
		names = g.engineNames
	}
	if name, ok := names[cmd]; ok {
		return name
	}
	return fmt.Sprintf("%s(%d)", dir, cmd)
}

// PointerArgs returns the argument indices of an engine syscall that carry
// addresses.
func (g *Game) PointerArgs(cmd int) []int {
	return g.pointers[cmd]
}

var (
	gamesOnce sync.Once
	games     []*Game
	gamesErr  error
)

// Games returns the built-in game table sorted by name.
func Games() ([]*Game, error) {
	gamesOnce.Do(func() {
		games, gamesErr = ParseGames(builtinGames)
		if gamesErr == nil {
			sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
		}
	})
	return games, gamesErr
}

// Lookup finds a built-in game by name, case-insensitively.
func Lookup(name string) (*Game, error) {
	all, err := Games()
	if err != nil {
		return nil, err
	}
	for _, g := range all {
		if strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}
	return nil, oops.Code("GAME_UNKNOWN").With("game", name).Errorf("unknown game %q", name)
}

// Detect finds the game whose native module is named like file. The host
// is installed under the original module's name, so its own filename
// identifies the game.
func Detect(file string) (*Game, error) {
	all, err := Games()
	if err != nil {
		return nil, err
	}
	base := path.Base(strings.ReplaceAll(file, "\\", "/"))
	for _, g := range all {
		for _, name := range g.Native {
			if strings.EqualFold(name, base) {
				return g, nil
			}
		}
	}
	return nil, oops.Code("GAME_UNKNOWN").With("file", base).Errorf("no known game uses module %q", base)
}

// NativeExt is the shared library extension of the running platform.
func NativeExt() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}
