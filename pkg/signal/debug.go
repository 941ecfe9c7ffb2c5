/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package signal

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type logger struct {
	zl zerolog.Logger
}

var (
	level          atomic.Int32
	internalLogger atomic.Pointer[logger]
)

func init() {
	level.Store(int32(zerolog.WarnLevel))
	if v := os.Getenv("SIGNAL_LOG_LEVEL"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			level.Store(int32(l))
		}
	}
	internalLogger.Store(newLogger("signal", os.Stderr))
}

// SetLogLevel changes the level of loggers created afterwards and of the package
// logger. The default level is warn; the process env `SIGNAL_LOG_LEVEL` also sets it.
func SetLogLevel(name string) error {
	l, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	level.Store(int32(l))
	internalLogger.Store(newLogger("signal", os.Stderr))
	return nil
}

func newLogger(name string, out io.Writer) *logger {
	if out == nil {
		out = os.Stderr
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339Nano}).
		Level(zerolog.Level(level.Load())).
		With().Timestamp().Str("component", name).Logger()
	return &logger{zl: zl}
}

func fromZerolog(zl zerolog.Logger) *logger {
	return &logger{zl: zl}
}

func (l *logger) with(key, value string) *logger {
	return &logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *logger) errorf(format string, a ...interface{}) {
	l.zl.Error().Msgf(format, a...)
}

func (l *logger) warnf(format string, a ...interface{}) {
	l.zl.Warn().Msgf(format, a...)
}

func (l *logger) infof(format string, a ...interface{}) {
	l.zl.Info().Msgf(format, a...)
}

func (l *logger) debugf(format string, a ...interface{}) {
	l.zl.Debug().Msgf(format, a...)
}

func (l *logger) tracef(format string, a ...interface{}) {
	l.zl.Trace().Msgf(format, a...)
}
