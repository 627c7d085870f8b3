package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ghetzel/cli"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/semtable/semtable"
)

func main() {
	app := cli.NewApp()
	app.Name = semtable.ApplicationName
	app.Usage = semtable.ApplicationSummary
	app.Version = semtable.ApplicationVersion
	app.EnableBashCompletion = true

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   `log-level, L`,
			Usage:  `Level of log output verbosity`,
			Value:  `info`,
			EnvVar: `LOGLEVEL`,
		},
		cli.StringFlag{
			Name:   `config, c`,
			Usage:  `The name of the configuration file to load (if present)`,
			Value:  semtable.DefaultConfigFile,
			EnvVar: `SEMTABLE_CONFIG`,
		},
		cli.StringFlag{
			Name:   `url, u`,
			Usage:  `The root URL of the enrichment backend`,
			EnvVar: `SEMTABLE_URL`,
		},
		cli.StringFlag{
			Name:   `username`,
			Usage:  `The username to sign in with`,
			EnvVar: `SEMTABLE_USERNAME`,
		},
		cli.StringFlag{
			Name:   `password`,
			Usage:  `The password to sign in with`,
			EnvVar: `SEMTABLE_PASSWORD`,
		},
		cli.StringFlag{
			Name:   `token, t`,
			Usage:  `A pre-obtained bearer token (bypasses sign-in)`,
			EnvVar: `SEMTABLE_TOKEN`,
		},
		cli.BoolFlag{
			Name:  `random-user-agent, R`,
			Usage: `Randomize the User-Agent header on outbound requests`,
		},
	}

	app.Before = func(c *cli.Context) error {
		log.SetLevelString(c.String(`log-level`))
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:  `datasets`,
			Usage: `List the datasets visible to the authenticated user`,
			Action: func(c *cli.Context) {
				df, err := client(c).Datasets(context.Background())
				log.FatalIf(err)
				fmt.Println(df)
			},
		}, {
			Name:      `dataset-create`,
			Usage:     `Create an empty dataset`,
			ArgsUsage: `NAME`,
			Action: func(c *cli.Context) {
				id, err := client(c).AddDataset(context.Background(), c.Args().First())
				log.FatalIf(err)
				fmt.Println(id)
			},
		}, {
			Name:      `dataset-delete`,
			Usage:     `Delete a dataset and every table in it`,
			ArgsUsage: `ID`,
			Action: func(c *cli.Context) {
				log.FatalIf(client(c).DeleteDataset(context.Background(), c.Args().First()))
			},
		}, {
			Name:      `tables`,
			Usage:     `List the tables in a dataset`,
			ArgsUsage: `DATASET`,
			Action: func(c *cli.Context) {
				df, err := client(c).Tables(context.Background(), c.Args().First())
				log.FatalIf(err)
				fmt.Println(df)
			},
		}, {
			Name:      `table`,
			Usage:     `Print an annotated table as JSON`,
			ArgsUsage: `DATASET TABLE`,
			Action: func(c *cli.Context) {
				table, err := client(c).GetTable(context.Background(), c.Args().Get(0), c.Args().Get(1))
				log.FatalIf(err)
				printJSON(table)
			},
		}, {
			Name:      `tables-delete`,
			Usage:     `Delete one or more tables from a dataset`,
			ArgsUsage: `DATASET ID [ID ..]`,
			Action: func(c *cli.Context) {
				var args = c.Args()
				var results = client(c).DeleteTables(context.Background(), args.First(), args.Tail())

				var failed int

				for tableID, err := range results {
					if err != nil {
						log.Errorf("%s: %v", tableID, err)
						failed++
					}
				}

				if failed > 0 {
					os.Exit(1)
				}
			},
		}, {
			Name:      `upload`,
			Usage:     `Upload a CSV file as a new table (character encoding is detected)`,
			ArgsUsage: `DATASET NAME FILE`,
			Action: func(c *cli.Context) {
				df, err := semtable.ReadCSVFile(c.Args().Get(2))
				log.FatalIf(err)

				id, err := client(c).AddTable(context.Background(), c.Args().Get(0), c.Args().Get(1), df)
				log.FatalIf(err)
				fmt.Println(id)
			},
		}, {
			Name:      `export`,
			Usage:     `Export a table`,
			ArgsUsage: `DATASET TABLE`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  `format, f`,
					Usage: `The export format; one of "csv" or "w3c"`,
					Value: `csv`,
				},
				cli.StringFlag{
					Name:  `transform, T`,
					Usage: `A JSONPath expression applied to W3C exports`,
				},
			},
			Action: func(c *cli.Context) {
				var ctx = context.Background()
				var datasetID = c.Args().Get(0)
				var tableID = c.Args().Get(1)

				switch format := c.String(`format`); format {
				case `csv`:
					log.FatalIf(client(c).ExportCSV(ctx, datasetID, tableID, os.Stdout))
				case `w3c`:
					export, err := client(c).ExportW3C(ctx, datasetID, tableID)
					log.FatalIf(err)

					out, err := semtable.ApplyJPath(export, c.String(`transform`))
					log.FatalIf(err)
					printJSON(out)
				default:
					log.Fatalf("unknown export format %q", format)
				}
			},
		}, {
			Name:  `reconciliators`,
			Usage: `List the reconciliator services the backend offers`,
			Action: func(c *cli.Context) {
				df, err := client(c).Reconciliators(context.Background())
				log.FatalIf(err)
				fmt.Println(df)
			},
		}, {
			Name:  `extenders`,
			Usage: `List the extender services the backend offers`,
			Action: func(c *cli.Context) {
				df, err := client(c).Extenders(context.Background())
				log.FatalIf(err)
				fmt.Println(df)
			},
		}, {
			Name:      `reconcile`,
			Usage:     `Reconcile a table column against a knowledge base and store the result`,
			ArgsUsage: `DATASET TABLE COLUMN SERVICE`,
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  `optional-column, O`,
					Usage: `An additional context column (repeatable)`,
				},
				cli.BoolFlag{
					Name:  `dry-run, n`,
					Usage: `Print the enriched table instead of the backend payload`,
				},
			},
			Action: func(c *cli.Context) {
				var ctx = context.Background()
				var sc = client(c)

				table, err := sc.GetTable(ctx, c.Args().Get(0), c.Args().Get(1))
				log.FatalIf(err)

				enriched, payload, err := sc.Reconcile(ctx, table, c.Args().Get(2), c.Args().Get(3), c.StringSlice(`optional-column`))
				log.FatalIf(err)

				if c.Bool(`dry-run`) {
					printJSON(enriched)
				} else {
					printJSON(payload)
				}
			},
		}, {
			Name:      `extend`,
			Usage:     `Extend a reconciled column with properties from an extender service`,
			ArgsUsage: `DATASET TABLE COLUMN EXTENDER`,
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  `property, p`,
					Usage: `A property or weather parameter to fetch (repeatable)`,
				},
				cli.StringFlag{
					Name:  `date-column`,
					Usage: `The date column for the Open-Meteo extender`,
				},
				cli.StringFlag{
					Name:  `decimal-format`,
					Usage: `The decimal separator convention for the Open-Meteo extender`,
				},
				cli.BoolFlag{
					Name:  `dry-run, n`,
					Usage: `Print the extended table instead of the backend payload`,
				},
			},
			Action: func(c *cli.Context) {
				var ctx = context.Background()
				var sc = client(c)

				table, err := sc.GetTable(ctx, c.Args().Get(0), c.Args().Get(1))
				log.FatalIf(err)

				extended, payload, err := sc.ExtendColumn(ctx, table, c.Args().Get(2), c.Args().Get(3), c.StringSlice(`property`), &semtable.ExtendOptions{
					DateColumn:    c.String(`date-column`),
					DecimalFormat: c.String(`decimal-format`),
				})
				log.FatalIf(err)

				if c.Bool(`dry-run`) {
					printJSON(extended)
				} else {
					printJSON(payload)
				}
			},
		}, {
			Name:      `suggest`,
			Usage:     `Suggest Wikidata properties for a reconciled column`,
			ArgsUsage: `DATASET TABLE COLUMN`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  `top, N`,
					Usage: `How many suggestions to show`,
					Value: 20,
				},
			},
			Action: func(c *cli.Context) {
				var ctx = context.Background()
				var sc = client(c)

				table, err := sc.GetTable(ctx, c.Args().Get(0), c.Args().Get(1))
				log.FatalIf(err)

				suggestions, err := sc.PropertySuggestions(ctx, table, c.Args().Get(2))
				log.FatalIf(err)

				for i, suggestion := range suggestions {
					if i >= c.Int(`top`) {
						break
					}

					fmt.Printf("%2d. %s: %s (%.1f%% coverage)\n",
						i+1, suggestion.ID, suggestion.Label, suggestion.Percentage)
				}
			},
		}, {
			Name:      `modify`,
			Usage:     `Apply a dataframe modifier to a local CSV file and print the result`,
			ArgsUsage: `MODIFIER FILE`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  `column, C`,
					Usage: `The column to operate on (iso_date, lower_case)`,
				},
				cli.StringSliceFlag{
					Name:  `mapping, m`,
					Usage: `An OLD=NEW or COLUMN=TYPE pair (rename_columns, convert_dtypes; repeatable)`,
				},
				cli.StringSliceFlag{
					Name:  `order, o`,
					Usage: `A column name, in output order (reorder_columns; repeatable)`,
				},
				cli.StringFlag{
					Name:  `pattern, p`,
					Usage: `A glob pattern naming the columns to keep (select_columns)`,
				},
			},
			Action: func(c *cli.Context) {
				df, err := semtable.ReadCSVFile(c.Args().Get(1))
				log.FatalIf(err)

				var mapping = make(map[string]string)

				for _, pair := range c.StringSlice(`mapping`) {
					if k, v, ok := strings.Cut(pair, `=`); ok {
						mapping[k] = v
					} else {
						log.Fatalf("malformed mapping %q; expected KEY=VALUE", pair)
					}
				}

				df, err = semtable.Apply(df, c.Args().First(), semtable.ModifierArgs{
					Column:  c.String(`column`),
					Mapping: mapping,
					Order:   c.StringSlice(`order`),
					Pattern: c.String(`pattern`),
				})

				log.FatalIf(err)
				log.FatalIf(df.WriteCSV(os.Stdout))
			},
		}, {
			Name:  `modifiers`,
			Usage: `List the available dataframe modifiers`,
			Action: func(c *cli.Context) {
				for _, name := range semtable.ModifierNames() {
					fmt.Printf("%-16s %s\n", name, semtable.Modifiers[name])
				}
			},
		},
	}

	app.Run(os.Args)
}

func client(c *cli.Context) *semtable.Client {
	config, err := semtable.LoadConfigFile(c.GlobalString(`config`))
	log.FatalIf(err)

	if v := c.GlobalString(`url`); v != `` {
		config.URL = strings.TrimSuffix(v, `/`)
	}

	if v := c.GlobalString(`username`); v != `` {
		config.Username = v
	}

	if v := c.GlobalString(`password`); v != `` {
		config.Password = v
	}

	if v := c.GlobalString(`token`); v != `` {
		config.Token = v
	}

	if c.GlobalBool(`random-user-agent`) {
		config.RandomizeUserAgent = true
	}

	sc, err := config.Client()
	log.FatalIf(err)

	return sc
}

func printJSON(v interface{}) {
	if data, err := json.MarshalIndent(v, ``, `  `); err == nil {
		fmt.Println(string(data))
	} else {
		log.FatalIf(err)
	}
}
