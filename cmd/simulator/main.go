package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/freeeve/vendetta/api/internal/service"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var catalogPath string
	root := &cobra.Command{
		Use:           "simulator",
		Short:         "Offline battle and construction calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "JSON catalog file (built-in catalog when empty)")
	root.AddCommand(newBattleCmd(&catalogPath), newRoomCmd(&catalogPath))
	return root
}

func newBattleCmd(catalogPath *string) *cobra.Command {
	var (
		attacker, defender, defenses string
		attTraining, defTraining     string
		asJSON                       bool
	)
	cmd := &cobra.Command{
		Use:   "battle",
		Short: "Resolve a battle between two armies",
		Example: `  simulator battle --attacker maton=100,pistolero=20 --defender centinela=50 --defenses proteccion=2
  simulator battle --attacker ninja=10 --attacker-training armas=3 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := openCatalog(*catalogPath)
			if err != nil {
				return err
			}
			req := service.SimulateRequest{}
			if req.Attacker.Troops, err = parseUnits(attacker); err != nil {
				return fmt.Errorf("--attacker: %w", err)
			}
			if len(req.Attacker.Troops) == 0 {
				return fmt.Errorf("--attacker is required")
			}
			if req.Defender.Troops, err = parseUnits(defender); err != nil {
				return fmt.Errorf("--defender: %w", err)
			}
			if req.Defenses, err = parseLevels(defenses); err != nil {
				return fmt.Errorf("--defenses: %w", err)
			}
			if req.Attacker.Trainings, err = parseLevels(attTraining); err != nil {
				return fmt.Errorf("--attacker-training: %w", err)
			}
			if req.Defender.Trainings, err = parseLevels(defTraining); err != nil {
				return fmt.Errorf("--defender-training: %w", err)
			}

			report, err := service.NewSimulator(catalog).Simulate(req)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printBattle(report)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&attacker, "attacker", "", "attacking troops as id=qty,id=qty")
	f.StringVar(&defender, "defender", "", "defending troops as id=qty,id=qty")
	f.StringVar(&defenses, "defenses", "", "defender room levels as id=level,...")
	f.StringVar(&attTraining, "attacker-training", "", "attacker training levels as id=level,...")
	f.StringVar(&defTraining, "defender-training", "", "defender training levels as id=level,...")
	f.BoolVar(&asJSON, "json", false, "print the raw report as JSON")
	return cmd
}

func newRoomCmd(catalogPath *string) *cobra.Command {
	var to, office int
	cmd := &cobra.Command{
		Use:   "room <id>",
		Short: "Show cost and build time per level for a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := openCatalog(*catalogPath)
			if err != nil {
				return err
			}
			room, err := catalog.Room(args[0])
			if err != nil {
				return err
			}
			if to < 1 {
				return fmt.Errorf("--to must be at least 1")
			}
			color.New(color.FgCyan, color.Bold).Printf("%s (%s)\n", room.Name, room.ID)
			table := tablewriter.NewTable(os.Stdout,
				tablewriter.WithHeader([]string{"Level", "Armas", "Munición", "Dólares", "Time", "Output/h"}),
			)
			rows, err := roomRows(room, to, office)
			if err != nil {
				return err
			}
			for _, row := range rows {
				table.Append(row)
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVar(&to, "to", 10, "highest level to list")
	cmd.Flags().IntVar(&office, "office", 1, "boss office level used for build times")
	return cmd
}

func openCatalog(path string) (*vendetta.Catalog, error) {
	if path == "" {
		return vendetta.DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return vendetta.LoadCatalog(f)
}

// roomRows lists cost, duration and output from level 1 up to to. For the
// boss office the office level is always the level being built.
func roomRows(room *vendetta.RoomConfig, to, office int) ([][]string, error) {
	rows := make([][]string, 0, to)
	for level := 1; level <= to; level++ {
		cost := vendetta.RoomCost(room, level)
		secs := vendetta.ConstructionTime(room, level, office)
		out, err := room.Output(level)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", level, err)
		}
		output := "-"
		if room.Produces != "" {
			output = fmt.Sprintf("%.0f %s", out, room.Produces)
		}
		rows = append(rows, []string{
			strconv.Itoa(level),
			strconv.FormatInt(cost.Armas, 10),
			strconv.FormatInt(cost.Municion, 10),
			strconv.FormatInt(cost.Dolares, 10),
			formatSeconds(secs),
			output,
		})
	}
	return rows, nil
}

func printBattle(report *vendetta.BattleReport) {
	title := color.New(color.FgCyan, color.Bold)
	for _, round := range report.Rounds {
		title.Printf("\nRound %d\n", round.Round)
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Side", "Troop", "Start", "Lost"}),
		)
		for _, line := range round.Attacker.Troops {
			table.Append([]string{"attacker", line.Name, fmtInt(line.InitialQuantity), fmtInt(line.LostQuantity)})
		}
		for _, line := range round.Defender.Troops {
			table.Append([]string{"defender", line.Name, fmtInt(line.InitialQuantity), fmtInt(line.LostQuantity)})
		}
		table.Render()
		fmt.Printf("attack %.0f / %.0f   defense %.0f / %.0f\n",
			round.Attacker.TotalAttackWithBonus, round.Defender.TotalAttackWithBonus,
			round.Attacker.TotalDefense, round.Defender.TotalDefense)
	}

	fmt.Println()
	switch report.Winner {
	case vendetta.WinnerAttacker:
		color.New(color.FgGreen, color.Bold).Println("Attacker wins")
	case vendetta.WinnerDefender:
		color.New(color.FgRed, color.Bold).Println("Defender wins")
	default:
		color.New(color.FgYellow, color.Bold).Println("Draw")
	}
	fmt.Printf("attacker lost %d troops (%d points), defender lost %d troops (%d points)\n",
		report.FinalStats.Attacker.TroopsLost, report.FinalStats.Attacker.PointsLost,
		report.FinalStats.Defender.TroopsLost, report.FinalStats.Defender.PointsLost)
	if report.FinalMessage != "" {
		fmt.Println(report.FinalMessage)
	}
}

func fmtInt(n int64) string { return strconv.FormatInt(n, 10) }
