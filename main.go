package main

import (
	"bufio"
	_ "embed"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sd-index/config"
	"sd-index/utils"
)

//goland:noinspection GoUnnecessarilyExportedIdentifiers
var AppVersion = "1.0"

var usageText = "Usage: ./sd-index command.\nAvailable commands:\n  index <root>\n  refresh <root>\n  refresh_strict <root>\n  extract\n  dedupe [-y]\n  integrity_check\n"

//go:embed config.yaml
var defaultConfigData []byte

func main() {
	c, err := config.Load(defaultConfigData)

	if err != nil {
		log.Fatal(err)
	}

	err = utils.SetupLogger(c.LogFilePath)

	if err != nil {
		log.Fatal(err)
	}

	ctx := &Context{
		Config: c,
		DB:     initDb(c),
	}

	debugFormat := ""

	if c.IsDebug {
		debugFormat = " (debug)"
	}

	utils.ConsoleAndLogPrintf("SD Index version %s%s. Using %s for file operations and batches of %s", AppVersion, debugFormat, utils.Pluralize("thread", c.MaxConcurrentFileOperations), humanize.Comma(c.BatchSize))
	startTime := time.Now()

	if len(os.Args) < 2 {
		utils.ConsoleAndLogPrintf(fmt.Sprintf("A command must be specified. %s", usageText))
		return
	}

	err = ctx.runCommand(strings.ToLower(os.Args[1]))

	if err != nil {
		utils.ConsoleAndLogPrintf("Error: %v", err)
	}

	utils.ConsoleAndLogPrintf("Finished in %s", utils.FormatDuration(time.Since(startTime)))
}

func (ctx *Context) runCommand(command string) error {
	switch command {
	case "index":
		return ctx.runIndexCommand(ModeAddOnly)

	case "refresh":
		return ctx.runIndexCommand(ModeFullRefresh)

	case "refresh_strict":
		return ctx.runIndexCommand(ModeStrictRefresh)

	case "extract":
		summary, err := ctx.ExtractFiles()

		if err != nil {
			return err
		}

		utils.ConsoleAndLogPrintf("Extraction: processed=%d written=%d skipped=%d no-metadata=%d", summary.Processed, summary.Written, summary.Skipped, summary.NoMetadata)
		return nil

	case "dedupe":
		return ctx.runDedupeCommand()

	case "integrity_check":
		return ctx.CheckAndRepair()
	}

	return fmt.Errorf("Command \"%s\" not recognised. %s", command, usageText)
}

func (ctx *Context) runIndexCommand(mode IndexMode) error {
	if len(os.Args) != 3 {
		log.Fatal("indexing requires a root path.")
	}

	_, err := ctx.IndexFiles(os.Args[2], mode)
	return err
}

func (ctx *Context) runDedupeCommand() error {
	groups, redundant, err := ctx.CountDuplicates()

	if err != nil {
		return err
	}

	if groups == 0 {
		utils.ConsoleAndLogPrintf("No duplicate content hashes found.")
		return nil
	}

	utils.ConsoleAndLogPrintf("Found %s. %s would be deleted (keeping one per group).", utils.Pluralize("duplicate group", groups), utils.Pluralize("file", redundant))

	confirmed := len(os.Args) == 3 && os.Args[2] == "-y"

	if !confirmed {
		fmt.Print("Type 'y' to proceed (anything else to cancel): ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		confirmed = strings.TrimSpace(strings.ToLower(answer)) == "y"
	}

	if !confirmed {
		utils.ConsoleAndLogPrintf("Cancelled.")
		return nil
	}

	_, err = ctx.DeduplicateByHash(confirmed)
	return err
}
