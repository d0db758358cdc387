package badger

import "github.com/rs/zerolog/log"

// zerologAdapter routes badger's internal logging into the global zerolog logger.
type zerologAdapter struct{}

func (zerologAdapter) Errorf(f string, v ...any) {
	log.Error().Str("module", "storage.badger").Msgf(f, v...)
}

func (zerologAdapter) Warningf(f string, v ...any) {
	log.Warn().Str("module", "storage.badger").Msgf(f, v...)
}

func (zerologAdapter) Infof(f string, v ...any) {
	log.Debug().Str("module", "storage.badger").Msgf(f, v...)
}

func (zerologAdapter) Debugf(f string, v ...any) {
	log.Trace().Str("module", "storage.badger").Msgf(f, v...)
}
