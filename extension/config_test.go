package extension

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/store/memory"
)

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{
		Owner:              "0xfile-owner",
		AutoSettleInterval: time.Minute,
	}
	programmatic := Config{
		Owner:                    "0xcode-owner",
		AutoSettleOperator:       "0xop",
		AutoSettleInterval:       time.Hour,
		DisableMigrate:           true,
		RequireVerifiedRecipient: true,
		NATSURL:                  "nats://localhost:4222",
	}

	got := mergeConfigurations(yamlCfg, programmatic)

	if got.Owner != "0xfile-owner" {
		t.Errorf("Owner: got %s, want 0xfile-owner", got.Owner)
	}
	if got.AutoSettleOperator != "0xop" {
		t.Errorf("AutoSettleOperator: got %s, want 0xop", got.AutoSettleOperator)
	}
	if got.AutoSettleInterval != time.Minute {
		t.Errorf("AutoSettleInterval: got %v, want 1m", got.AutoSettleInterval)
	}
	if !got.DisableMigrate || !got.RequireVerifiedRecipient {
		t.Error("programmatic flags were not applied")
	}
	if got.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL: got %s", got.NATSURL)
	}
	if got.PluginTimeout != DefaultConfig().PluginTimeout {
		t.Errorf("PluginTimeout: got %v, want default", got.PluginTimeout)
	}
	if got.SubjectPrefix != "thermal" {
		t.Errorf("SubjectPrefix: got %s, want thermal", got.SubjectPrefix)
	}
}

func TestOptions(t *testing.T) {
	s := memory.New()
	e := New(
		WithOwner("0xowner"),
		WithStore(s),
		WithDisableMigrate(),
		WithRecipientVerification(),
		WithAutoSettle("0xop", 30*time.Second),
	)

	if e.config.Owner != "0xowner" {
		t.Errorf("Owner: got %s", e.config.Owner)
	}
	if e.store != store.Store(s) {
		t.Error("store not set")
	}
	if !e.config.DisableMigrate || !e.config.RequireVerifiedRecipient {
		t.Error("flags not set")
	}
	if e.config.AutoSettleOperator != "0xop" || e.config.AutoSettleInterval != 30*time.Second {
		t.Errorf("auto settle: got %s/%v", e.config.AutoSettleOperator, e.config.AutoSettleInterval)
	}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		t.Fatal(err)
	}
	// plugin timeout is unset until config is merged
	if len(opts) != 2 {
		t.Errorf("ledger options: got %d, want 2", len(opts))
	}
}

type migrateCounter struct {
	*memory.Store
	calls int
}

func (m *migrateCounter) Migrate(context.Context) error {
	m.calls++
	return errors.New("should not migrate")
}

func TestPremigratedSkipsMigrate(t *testing.T) {
	inner := &migrateCounter{Store: memory.New()}
	s := premigrated{inner}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner Migrate called %d times", inner.calls)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

// mapConfig is a configSource over fixed values; errs makes a key fail.
type mapConfig struct {
	values map[string]Config
	errs   map[string]error
}

func (m mapConfig) IsSet(key string) bool {
	_, ok := m.values[key]
	if !ok {
		_, ok = m.errs[key]
	}
	return ok
}

func (m mapConfig) Bind(key string, target any) error {
	if err := m.errs[key]; err != nil {
		return err
	}
	*target.(*Config) = m.values[key]
	return nil
}

func TestBindFileConfig(t *testing.T) {
	errDecode := errors.New("cannot decode 'owner'")

	tests := []struct {
		name      string
		src       mapConfig
		wantKey   string
		wantFound bool
		wantOwner string
		wantErr   error
	}{
		{
			name:      "nested key",
			src:       mapConfig{values: map[string]Config{"extensions.thermal": {Owner: "0xa"}}},
			wantKey:   "extensions.thermal",
			wantFound: true,
			wantOwner: "0xa",
		},
		{
			name: "bind failure falls through",
			src: mapConfig{
				values: map[string]Config{"thermal": {Owner: "0xb"}},
				errs:   map[string]error{"extensions.thermal": errDecode},
			},
			wantKey:   "thermal",
			wantFound: true,
			wantOwner: "0xb",
			wantErr:   errDecode,
		},
		{
			name:    "only failures",
			src:     mapConfig{errs: map[string]error{"thermal": errDecode}},
			wantErr: errDecode,
		},
		{
			name: "nothing configured",
			src:  mapConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, key, found, err := bindFileConfig(tt.src)
			if found != tt.wantFound || key != tt.wantKey {
				t.Fatalf("got key %q found %v, want %q %v", key, found, tt.wantKey, tt.wantFound)
			}
			if cfg.Owner != tt.wantOwner {
				t.Errorf("Owner: got %s, want %s", cfg.Owner, tt.wantOwner)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("got %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr.Error()) {
				t.Errorf("error %q hides the bind failure", err)
			}
		})
	}
}
