// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/plughost/internal/loader"
	pluginlua "github.com/holomush/plughost/internal/loader/lua"
	plugins "github.com/holomush/plughost/internal/plugin"
)

// examplePlugin is the Lua plugin shipped under examples/.
var examplePlugin = filepath.Join("..", "..", "examples", "lua", "plugin1.lua")

type hostLog struct {
	mu   sync.Mutex
	msgs []string
}

func (h *hostLog) record(_, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func (h *hostLog) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.msgs...)
}

var _ = Describe("Lua plugin lifecycle", func() {
	var (
		ctx  context.Context
		logs *hostLog
		mux  *loader.Mux
		mgr  *plugins.Manager
		dir  string
	)

	BeforeEach(func() {
		ctx = context.Background()
		logs = &hostLog{}
		dir = GinkgoT().TempDir()

		var err error
		mux, err = loader.NewMux(loader.Route{
			Pattern: "*.lua",
			Loader:  pluginlua.New(pluginlua.WithRecorder(logs.record)),
		})
		Expect(err).NotTo(HaveOccurred())
		mgr = plugins.NewManager(mux)
		DeferCleanup(mgr.Close)
	})

	writeScript := func(name, body string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	It("loads the example plugin and computes 3 + 4", func() {
		Expect(mgr.Load(ctx, examplePlugin)).To(Succeed())
		Expect(mgr.Names()).To(Equal([]string{"Plugin1"}))
		Expect(mgr.Infos()[0].Backend).To(Equal(loader.BackendLua))

		p, err := mgr.Get("Plugin1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Work(3, 4)).To(Equal(int64(7)))

		mgr.UnloadAll(ctx)
		_, err = mgr.Get("Plugin1")
		Expect(err).To(MatchError(plugins.ErrNotFound))
		Expect(logs.messages()).To(Equal([]string{
			"Plugin1 loaded",
			"Plugin1 unloading after 2 calls",
		}))
	})

	It("keeps borrowed plugins from reaching a closed state", func() {
		Expect(mgr.Load(ctx, examplePlugin)).To(Succeed())
		p, err := mgr.Get("Plugin1")
		Expect(err).NotTo(HaveOccurred())

		mgr.UnloadAll(ctx)
		_, err = p.Work(1, 1)
		Expect(err).To(MatchError(loader.ErrLibraryClosed))
	})

	It("enforces a contract version constraint", func() {
		constraint, err := semver.NewConstraint(">= 2.0")
		Expect(err).NotTo(HaveOccurred())
		strict := plugins.NewManager(mux, plugins.WithABIConstraint(constraint))
		DeferCleanup(strict.Close)

		Expect(strict.Load(ctx, examplePlugin)).To(MatchError(plugins.ErrABIMismatch))
		Expect(strict.Len()).To(BeZero())
		Expect(strict.Handles()).To(Equal(1))
	})

	It("isolates a plugin whose load hook fails", func() {
		broken := writeScript("broken.lua", `
function plugin_create()
  local p = {}
  function p:name() return "Broken" end
  function p:on_load() return "missing configuration" end
  function p:work(a, b) return 0 end
  return p
end`)

		Expect(mgr.Load(ctx, examplePlugin)).To(Succeed())
		err := mgr.Load(ctx, broken)
		Expect(err).To(MatchError(plugins.ErrHookFailure))
		Expect(err.Error()).To(ContainSubstring("missing configuration"))

		Expect(mgr.Names()).To(Equal([]string{"Plugin1"}))
		Expect(mgr.Handles()).To(Equal(2))
	})

	It("reports scripts without a constructor", func() {
		empty := writeScript("empty.lua", `x = 1`)
		Expect(mgr.Load(ctx, empty)).To(MatchError(plugins.ErrSymbolNotFound))
	})

	It("rejects paths no backend accepts", func() {
		other := writeScript("plugin.txt", "")
		err := mgr.Load(ctx, other)
		Expect(err).To(MatchError(plugins.ErrOpenFailed))
		Expect(err).To(MatchError(loader.ErrNoBackend))
		Expect(mgr.Handles()).To(BeZero())
	})

	It("rejects loads after Close", func() {
		Expect(mgr.Close()).To(Succeed())
		Expect(mgr.Load(ctx, examplePlugin)).To(MatchError(plugins.ErrManagerClosed))
	})
})
