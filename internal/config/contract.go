package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultCommissionBps is the marketplace fee applied when no contract matches (5%).
const DefaultCommissionBps int64 = 500

// ContractTerms are the organizer commission terms. The rate is read once when an
// event is published and frozen on its ledger; later edits never touch existing ledgers.
type ContractTerms struct {
	DefaultCommissionBps int64            `mapstructure:"defaultCommissionBps"`
	Organizers           map[string]int64 `mapstructure:"organizers"`
}

func DefaultContractTerms() ContractTerms {
	return ContractTerms{
		DefaultCommissionBps: DefaultCommissionBps,
		Organizers:           map[string]int64{},
	}
}

// CommissionBps returns the rate for an organizer, falling back to the default.
func (t ContractTerms) CommissionBps(organizerID string) int64 {
	if bps, ok := t.Organizers[strings.TrimSpace(organizerID)]; ok {
		return bps
	}
	return t.DefaultCommissionBps
}

// CommissionSource resolves organizer commission rates.
type CommissionSource interface {
	CommissionBps(organizerID string) int64
}

type ContractHolder struct {
	current atomic.Value // holds ContractTerms
}

// StaticContracts wraps fixed terms, mostly for tests.
func StaticContracts(terms ContractTerms) *ContractHolder {
	holder := &ContractHolder{}
	holder.current.Store(terms)
	return holder
}

func NewContractHolder(cfg Config, log *zap.Logger) (*ContractHolder, error) {
	v := viper.New()

	if cfg.ContractsPath != "" {
		v.SetConfigFile(cfg.ContractsPath)
	} else {
		v.SetConfigName("contracts")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/boxoffice")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOXOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultContractTerms()
	v.SetDefault("contracts.defaultCommissionBps", defaults.DefaultCommissionBps)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	cfgTerms, err := unmarshalTerms(v)
	if err != nil {
		return nil, err
	}

	holder := StaticContracts(cfgTerms)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := unmarshalTerms(v)
			if err != nil {
				log.Warn("invalid contracts config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("contracts reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *ContractHolder) Get() ContractTerms {
	return h.current.Load().(ContractTerms)
}

func (h *ContractHolder) CommissionBps(organizerID string) int64 {
	return h.Get().CommissionBps(organizerID)
}

func unmarshalTerms(v *viper.Viper) (ContractTerms, error) {
	var terms ContractTerms
	if err := v.UnmarshalKey("contracts", &terms); err != nil {
		return ContractTerms{}, err
	}
	if terms.Organizers == nil {
		terms.Organizers = map[string]int64{}
	}
	if err := validateContractTerms(terms); err != nil {
		return ContractTerms{}, err
	}
	return terms, nil
}

func validateContractTerms(terms ContractTerms) error {
	if terms.DefaultCommissionBps < 0 || terms.DefaultCommissionBps > 10_000 {
		return errors.New("contracts.defaultCommissionBps must be within 0..10000")
	}
	for organizer, bps := range terms.Organizers {
		if bps < 0 || bps > 10_000 {
			return errors.New("contracts.organizers." + organizer + " must be within 0..10000")
		}
	}
	return nil
}
