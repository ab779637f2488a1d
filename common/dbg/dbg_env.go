// Copyright 2025 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.


// Package dbg reads tuning knobs from EF_-prefixed environment variables. Values are read once,
// when the calling package initializes its defaults; a malformed value is a startup panic.
package dbg

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
)

const envPrefix = "EF_"

func env[T any](name string, defaultVal T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return defaultVal
	}
	val, err := parse(v)
	if err != nil {
		panic(fmt.Errorf("%s%s=%q: %w", envPrefix, name, v, err))
	}
	log.Debug("[env]", name, v)
	return val
}

func EnvString(name string, defaultVal string) string {
	return env(name, defaultVal, func(s string) (string, error) { return s, nil })
}

func EnvInt(name string, defaultVal int) int {
	return env(name, defaultVal, func(s string) (int, error) { return int(MustParseInt(s)), nil })
}

func EnvDataSize(name string, defaultVal datasize.ByteSize) datasize.ByteSize {
	return env(name, defaultVal, datasize.ParseString)
}

// MustParseInt parses a decimal integer that may use _ as a digit separator.
func MustParseInt(s string) int64 {
	parsed, err := strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 10, 64)
	if err != nil {
		panic(fmt.Errorf("%w, str: %s", err, s))
	}
	return parsed
}
