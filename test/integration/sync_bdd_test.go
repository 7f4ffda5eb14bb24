//go:build integration

package integration

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/daemon"
	"github.com/me2d/cmlsync/internal/domain"
	"github.com/me2d/cmlsync/internal/infra"
	"github.com/me2d/cmlsync/internal/state"
	"github.com/me2d/cmlsync/internal/usecase"
	"github.com/me2d/cmlsync/test/fixtures"
)

// engine is one launch of the sync engine over a data directory.
type engine struct {
	records    *infra.EncryptedStore
	legacy     *infra.LegacyPrefs
	hub        *state.Hub
	history    *usecase.HistoryTracker
	dispatcher *daemon.Dispatcher
}

func launch(ctx context.Context, dataDir string, wifi domain.WifiObserver) *engine {
	logger := zap.NewNop()

	records, err := infra.OpenStateStore(dataDir)
	Expect(err).NotTo(HaveOccurred())

	e := &engine{records: records, history: usecase.NewHistoryTracker()}

	var migrator *usecase.LegacyMigrator
	legacyDir := filepath.Join(dataDir, infra.LegacyPrefsDir)
	if _, err := os.Stat(legacyDir); err == nil {
		e.legacy, err = infra.OpenLegacyPrefs(infra.LegacyPrefsOptions{Dir: legacyDir})
		Expect(err).NotTo(HaveOccurred())
		migrator = usecase.NewLegacyMigrator(e.legacy, logger)
	}

	e.hub = state.NewHub(ctx, usecase.NewPersistentStateStore(records, migrator, logger), logger)
	resolver := usecase.NewEndpointResolver(wifi, logger)
	api := infra.NewHTTPRemoteAPI(5*time.Second, "cmlsync-integration", logger)
	client := usecase.NewCommandClient(api, infra.NewRSACredentials(), resolver, e.history, e.hub, logger)
	e.dispatcher = daemon.NewDispatcher(ctx, client, e.hub, 4, logger)
	return e
}

// run submits one operation and waits for it to finish.
func (e *engine) run(submit func()) domain.CallState {
	submit()
	Expect(e.dispatcher.Wait()).To(Succeed())
	return e.hub.Call()
}

func (e *engine) close() {
	_ = e.dispatcher.Wait()
	if e.legacy != nil {
		Expect(e.legacy.Close()).To(Succeed())
	}
	Expect(e.records.Close()).To(Succeed())
}

func setSettings(e *engine, settings domain.Settings) {
	Expect(e.hub.Update(context.Background(), func(s domain.AggregateState) domain.AggregateState {
		s.Settings = settings
		return s
	})).To(Succeed())
}

var _ = Describe("Sync engine", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		dataDir string
		server  *fixtures.FakeCommandServer
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		dataDir = GinkgoT().TempDir()
		server = fixtures.NewFakeCommandServer([]fixtures.RemoteCommand{
			{Number: 1, Description: "Lights on"},
			{Number: 2, Description: "Lights off"},
			{Number: 3, Description: "Open gate"},
		})
	})

	AfterEach(func() {
		cancel()
		server.Close()
	})

	Describe("Register, fetch and execute", func() {
		It("should complete the full flow with signed requests", func() {
			e := launch(ctx, dataDir, infra.StaticWifiObserver{})
			defer e.close()
			setSettings(e, domain.Settings{APIURL: server.URL, AccountID: "acct-7"})

			call := e.run(e.dispatcher.Register)
			Expect(call.Status).To(Equal(domain.CallSuccess))
			Expect(call.Message).To(Equal("Registered acct-7"))
			Expect(server.AccountID()).To(Equal("acct-7"))
			Expect(e.hub.State().IsRegistered()).To(BeTrue())

			call = e.run(e.dispatcher.FetchCommands)
			Expect(call.Status).To(Equal(domain.CallSuccess))
			Expect(call.Message).To(Equal("Loaded 3 commands"))
			Expect(e.hub.State().Commands).To(HaveLen(3))

			e.run(func() { e.dispatcher.ExecuteCommand(2) })
			call = e.run(func() { e.dispatcher.ExecuteCommand(2) })
			Expect(call.Status).To(Equal(domain.CallSuccess))
			Expect(call.Message).To(Equal("Command 2 executed"))

			Expect(server.Executed()).To(Equal([]int{2, 2}))
			Expect(server.RejectedCalls()).To(BeZero())
			Expect(server.UniqueRequestIDs()).To(Equal(4))

			s := e.hub.State()
			Expect(s.History[e.history.Today()][2]).To(Equal(2))
			ranked := e.history.Rank(s.Commands, s.History)
			Expect(ranked[0].Number).To(Equal(2))
		})
	})

	Describe("Persistence", func() {
		It("should restore the encrypted state on the next launch", func() {
			e := launch(ctx, dataDir, infra.StaticWifiObserver{})
			setSettings(e, domain.Settings{APIURL: server.URL, AccountID: "acct-7"})
			e.run(e.dispatcher.Register)
			e.run(e.dispatcher.FetchCommands)
			e.run(func() { e.dispatcher.ExecuteCommand(3) })
			before := e.hub.State()
			e.close()

			raw, err := os.ReadFile(filepath.Join(dataDir, infra.StateDBName))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).NotTo(ContainSubstring(before.PrivateKeyEncoded[:32]))

			e2 := launch(ctx, dataDir, infra.StaticWifiObserver{})
			defer e2.close()
			after := e2.hub.State()
			Expect(after.Settings).To(Equal(before.Settings))
			Expect(after.PrivateKeyEncoded).To(Equal(before.PrivateKeyEncoded))
			Expect(after.Commands).To(Equal(before.Commands))
			Expect(after.History).To(Equal(before.History))
			Expect(after.RegistrationTimestamp.Equal(*before.RegistrationTimestamp)).To(BeTrue())
			Expect(e2.hub.Call().Status).To(Equal(domain.CallIdle))

			// The restored key still signs requests the server accepts.
			call := e2.run(func() { e2.dispatcher.ExecuteCommand(1) })
			Expect(call.Status).To(Equal(domain.CallSuccess))
		})
	})

	Describe("Failed execution", func() {
		It("should report the HTTP status and leave history unchanged", func() {
			e := launch(ctx, dataDir, infra.StaticWifiObserver{})
			defer e.close()
			setSettings(e, domain.Settings{APIURL: server.URL})
			e.run(e.dispatcher.Register)

			server.FailExecuteWith(http.StatusInternalServerError)
			call := e.run(func() { e.dispatcher.ExecuteCommand(1) })

			Expect(call.Status).To(Equal(domain.CallError))
			Expect(call.Operation).To(Equal(domain.OpExecuteCommand))
			Expect(call.Message).To(Equal("Command 1 failed with HTTP 500"))
			Expect(e.hub.State().History).To(BeEmpty())
		})
	})

	Describe("Unregistered client", func() {
		It("should fail locally without contacting the server", func() {
			e := launch(ctx, dataDir, infra.StaticWifiObserver{})
			defer e.close()
			setSettings(e, domain.Settings{APIURL: server.URL})

			call := e.run(e.dispatcher.FetchCommands)
			Expect(call.Status).To(Equal(domain.CallError))
			Expect(call.Message).To(Equal("Fetching commands failed: no private key stored, register first"))
			Expect(server.UniqueRequestIDs()).To(BeZero())
		})
	})

	Describe("WiFi endpoint selection", func() {
		It("should use the WiFi URL on a matching network", func() {
			e := launch(ctx, dataDir, infra.StaticWifiObserver{Name: "HomeNet-5G"})
			defer e.close()
			setSettings(e, domain.Settings{
				APIURL:      "http://127.0.0.1:1/unreachable",
				WifiPattern: "HomeNet.*",
				WifiURL:     server.URL,
			})

			call := e.run(e.dispatcher.Register)
			Expect(call.Status).To(Equal(domain.CallSuccess))
		})

		It("should use the API URL on other networks", func() {
			e := launch(ctx, dataDir, infra.StaticWifiObserver{Name: "CoffeeShop"})
			defer e.close()
			setSettings(e, domain.Settings{
				APIURL:      server.URL,
				WifiPattern: "HomeNet.*",
				WifiURL:     "http://127.0.0.1:1/unreachable",
			})

			call := e.run(e.dispatcher.Register)
			Expect(call.Status).To(Equal(domain.CallSuccess))
		})
	})

	Describe("Legacy migration", func() {
		writeLegacy := func(values map[string]string) {
			prefs, err := infra.OpenLegacyPrefs(infra.LegacyPrefsOptions{Dir: filepath.Join(dataDir, infra.LegacyPrefsDir)})
			Expect(err).NotTo(HaveOccurred())
			for k, v := range values {
				Expect(prefs.PutString(ctx, k, v)).To(Succeed())
			}
			Expect(prefs.Close()).To(Succeed())
		}

		It("should migrate once on first launch", func() {
			writeLegacy(map[string]string{
				usecase.LegacyKeyServerURL: server.URL,
				usecase.LegacyKeySentDate:  "2023-11-02T18:45:10",
			})

			e := launch(ctx, dataDir, infra.StaticWifiObserver{})
			s := e.hub.State()
			Expect(s.Settings.APIURL).To(Equal(server.URL))
			Expect(s.RegistrationTimestamp).NotTo(BeNil())
			Expect(s.RegistrationTimestamp.Equal(time.Date(2023, 11, 2, 18, 45, 10, 0, time.UTC))).To(BeTrue())
			setSettings(e, domain.Settings{APIURL: server.URL, AccountID: "changed"})
			e.close()

			writeLegacy(map[string]string{usecase.LegacyKeyServerURL: "https://other.example.com"})

			e2 := launch(ctx, dataDir, infra.StaticWifiObserver{})
			defer e2.close()
			Expect(e2.hub.State().Settings.AccountID).To(Equal("changed"))
			Expect(e2.hub.State().Settings.APIURL).To(Equal(server.URL))
		})

		It("should start empty without legacy data", func() {
			e := launch(ctx, dataDir, infra.StaticWifiObserver{})
			defer e.close()
			Expect(e.hub.State().IsRegistered()).To(BeFalse())
			Expect(e.hub.State().Settings).To(Equal(domain.Settings{}))
		})
	})

	Describe("Watcher", func() {
		It("should clear a finished call after the dismiss delay", func() {
			e := launch(ctx, dataDir, infra.StaticWifiObserver{})
			defer e.close()
			setSettings(e, domain.Settings{APIURL: server.URL})

			w := daemon.NewWatcher(daemon.WatcherConfig{DismissDelay: 100 * time.Millisecond, WifiCheckInterval: time.Hour}, e.hub, nil, zap.NewNop())
			go func() { _ = w.Run(ctx) }()

			call := e.run(e.dispatcher.Register)
			Expect(call.Status).To(Equal(domain.CallSuccess))
			Eventually(func() domain.CallStatus { return e.hub.Call().Status }).
				WithTimeout(2 * time.Second).
				Should(Equal(domain.CallIdle))
		})
	})
})
