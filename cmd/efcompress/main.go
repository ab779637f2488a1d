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

package main

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/efpostings/common/dbg"
	"github.com/erigontech/efpostings/compressor"
)

var (
	DataDirFlag = cli.StringFlag{
		Name:     "datadir",
		Usage:    "Directory of the compressed index",
		Required: true,
	}
	NameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "Index name, used as the prefix of every file",
		Value: dbg.EnvString("INDEX_NAME", "index"),
	}
	CorpusFlag = cli.StringFlag{
		Name:     "corpus",
		Usage:    "Text file with one document per line, - for stdin",
		Required: true,
	}
	Log2QuantumFlag = cli.IntFlag{
		Name:  "log2-quantum",
		Usage: "Pointer spacing: one pointer every 2^n elements (or zeroes for doc ids)",
		Value: dbg.EnvInt("LOG2_QUANTUM", compressor.DefaultConfig().Log2Quantum),
	}
	CacheSizeFlag = cli.StringFlag{
		Name:  "cache-size",
		Usage: "Bits kept in memory per encoder before spilling to the temp dir, e.g. 64MB",
		Value: dbg.EnvDataSize("CACHE_SIZE", compressor.DefaultConfig().CacheSize).String(),
	}
	WorkersFlag = cli.IntFlag{
		Name:  "workers",
		Usage: "Partitions compressed concurrently",
		Value: dbg.EnvInt("WORKERS", compressor.DefaultConfig().Workers),
	}
	PartitionsFlag = cli.IntFlag{
		Name:  "partitions",
		Usage: "Number of term partitions",
		Value: 1,
	}
	ProbesFlag = cli.IntFlag{
		Name:  "probes",
		Usage: "Skip probes per term during verification",
		Value: 16,
	}
	VerbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: int(log.LvlInfo),
	}
)

var compressCommand = cli.Command{
	Action:    doCompress,
	Name:      "compress",
	Usage:     "Build an inverted index from a corpus and compress its postings",
	ArgsUsage: "",
	Flags: []cli.Flag{
		&DataDirFlag,
		&NameFlag,
		&CorpusFlag,
		&Log2QuantumFlag,
		&CacheSizeFlag,
		&WorkersFlag,
		&PartitionsFlag,
	},
}

var verifyCommand = cli.Command{
	Action: doVerify,
	Name:   "verify",
	Usage:  "Decode every posting list of a compressed index and compare it with the corpus",
	Flags: []cli.Flag{
		&DataDirFlag,
		&NameFlag,
		&CorpusFlag,
		&ProbesFlag,
	},
}

var statsCommand = cli.Command{
	Action: doStats,
	Name:   "stats",
	Usage:  "Print the size of a compressed index",
	Flags: []cli.Flag{
		&DataDirFlag,
		&NameFlag,
	},
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "efcompress"
	app.Usage = "quasi-succinct posting list compressor"
	app.UsageText = app.Name + ` [command] [flags]`
	app.Commands = []*cli.Command{
		&compressCommand,
		&verifyCommand,
		&statsCommand,
	}
	app.Flags = []cli.Flag{
		&VerbosityFlag,
	}
	app.Before = func(cliCtx *cli.Context) error {
		lvl := log.Lvl(cliCtx.Int(VerbosityFlag.Name))
		log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StderrHandler))
		return nil
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseCacheSize(s string) (datasize.ByteSize, error) {
	size, err := datasize.ParseString(s)
	if err != nil {
		return 0, fmt.Errorf("--%s=%s: %w", CacheSizeFlag.Name, s, err)
	}
	return size, nil
}
