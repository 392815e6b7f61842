package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IMQS/cli"
	"github.com/IMQS/gowinsvc/service"
	"github.com/jasonlvhit/gocron"
	_ "github.com/lib/pq"

	"github.com/IMQS/censearch/catalog"
	"github.com/IMQS/censearch/ingest"
	"github.com/IMQS/censearch/search"
	"github.com/IMQS/censearch/server"
)

func main() {
	app := cli.App{}
	app.Description = "censearch -c=configfile [options] command"
	app.DefaultExec = exec
	app.AddCommand("run", "Run the census search service")
	app.AddCommand("find", "Search the catalogue from the command line", "...term")
	app.AddCommand("table", "Show a table and its variable hierarchy", "id")
	app.AddCommand("ingest-tables", "Load table documentation from a census groups.json file.\nRequires -e.", "file")
	app.AddCommand("ingest-variables", "Load variables from a census variables.json file, repairing broken hierarchies.\nRequires -e.", "file")
	app.AddCommand("load-aliases", "Replace the alias table with the contents of a CSV file (expected_query, alias_query)", "file")
	app.AddCommand("vacuum", "Vacuum the catalogue tables")
	app.AddValueOption("c", "configfile", "Configuration file if not using the configuration service")
	app.AddValueOption("e", "edition", "Survey edition of ingested files (acs1 or acs5)")
	os.Exit(app.Run())
}

func exec(cmdName string, args []string, options cli.OptionSet) int {
	configFile := options["c"]

	engine := server.Engine{}
	engine.ConfigFile = configFile

	err := engine.LoadConfigFromFile()
	if err != nil {
		fmt.Printf("Error loading censearch config: %v\n", err)
		return 1
	}

	err = engine.Initialize(false)
	if err != nil {
		if engine.ErrorLog != nil {
			engine.ErrorLog.Error(err.Error())
		}
		fmt.Printf("Error initializing censearch engine: %v\n", err)
		return 1
	}
	defer engine.Close()

	run := func() {
		config := engine.GetConfig()
		if !config.DisableAutoVacuum {
			engine.StartAutoVacuum()
			gocron.Start()
		}
		err = engine.RunHttp()
		if err != nil {
			engine.ErrorLog.Errorf("Error running HTTP server: %v\n", err)
		}
	}

	start := time.Now()
	ctx := context.Background()

	switch cmdName {
	case "run":
		if !service.RunAsService(run) {
			run()
		}
	case "find":
		var res *search.Result
		res, err = engine.Find(ctx, strings.Join(args, " "), search.ModeDisplay)
		if search.IsNoResults(err) {
			fmt.Printf("No results (%v)\n", search.NoResultsReason(err))
			err = nil
		} else if err == nil {
			fmt.Printf("Query: %v\n", res.Plan.Rewritten)
			fmt.Printf("%-10v %6v  %v\n", "Table", "Rank", "Match")
			for _, h := range search.Display(res.Hits) {
				fmt.Printf("%-10v %6.3f  %v\n", h.TableID, h.Rank, h.HighlightedTable)
				for _, v := range h.Variables {
					fmt.Printf("%-10v %6v    %v %v\n", "", "", v.ID, v.Highlighted)
				}
			}
		}
	case "table":
		var detail *server.TableDetail
		detail, err = engine.GetTableDetail(ctx, strings.ToUpper(args[0]))
		if err == nil {
			fmt.Printf("%v: %v (%v)\n", detail.Table.ID, detail.Table.Description, detail.Table.Universe)
			catalog.Walk(detail.Variables, func(n *catalog.Node, level int) {
				fmt.Printf("%v%v %v\n", strings.Repeat("  ", level+1), n.ID, n.Label)
			})
		}
	case "ingest-tables":
		err = ingestTables(&engine, args[0], options["e"])
	case "ingest-variables":
		err = ingestVariables(ctx, &engine, args[0], options["e"])
	case "load-aliases":
		err = loadAliases(&engine, args[0])
	case "vacuum":
		err = engine.Vacuum()
	default:
		fmt.Printf("Unknown command %v\n", cmdName)
		return 1
	}

	if err == nil {
		fmt.Printf("Finished in %.3v seconds\n", time.Now().Sub(start).Seconds())
		return 0
	} else {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
}

func ingestTables(engine *server.Engine, filename, editionName string) error {
	edition, err := catalog.ParseEdition(editionName)
	if err != nil {
		return err
	}
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	tables, err := ingest.ReadTables(f, edition)
	if err != nil {
		return err
	}
	report, err := engine.IngestTables(tables)
	if err != nil {
		return err
	}
	fmt.Printf("Run %v: %v tables\n", report.RunID, report.Tables)
	return nil
}

func ingestVariables(ctx context.Context, engine *server.Engine, filename, editionName string) error {
	edition, err := catalog.ParseEdition(editionName)
	if err != nil {
		return err
	}
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	batches, skipped, err := ingest.ReadVariables(f)
	if err != nil {
		return err
	}
	fmt.Printf("Read %v tables (%v entries skipped)\n", len(batches), skipped)
	report, err := engine.IngestVariables(ctx, batches, edition)
	if report != nil {
		fmt.Printf("Run %v: %v variables in %v tables, %v merges, %v unresolved\n",
			report.RunID, report.Variables, report.Tables, report.Merges, len(report.Unresolved))
	}
	return err
}

func loadAliases(engine *server.Engine, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	aliases, err := ingest.ReadAliases(f)
	if err != nil {
		return err
	}
	return engine.LoadAliases(aliases)
}
