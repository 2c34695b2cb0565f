/*
 * This file is part of Atlas-DB.
 *
 * Atlas-DB is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of
 * the License, or (at your option) any later version.
 *
 * Atlas-DB is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with Atlas-DB. If not, see <https://www.gnu.org/licenses/>.
 *
 */

package options

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide default logger. Components that are not handed
// a logger explicitly log here. It discards everything until a binary sets it.
var Logger = zap.NewNop()

// DevelopmentMode switches NewLogger to human-readable console output
var DevelopmentMode = os.Getenv("ATLAS_DEVELOPMENT_MODE") == "true"

// NewLogger builds a logger at the given level ("debug", "info", "warn", "error")
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if DevelopmentMode {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// LoggerOr returns l, or the default Logger when l is nil
func LoggerOr(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return Logger
}
