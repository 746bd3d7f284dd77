package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"shopping-planner/internal/app"
	"shopping-planner/internal/config"
	"shopping-planner/internal/logger"
	"shopping-planner/internal/metrics"
	"shopping-planner/internal/session"
	"shopping-planner/internal/shopping"
	"shopping-planner/internal/storage"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	command := os.Args[1]
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	start := fs.String("start", "", "First day of the range (YYYY-MM-DD)")
	end := fs.String("end", "", "Last day of the range (YYYY-MM-DD)")
	exclude := fs.String("exclude", "", "Comma separated meal types to leave out")
	sortBy := fs.String("sort", string(shopping.SortByIngredientName), "Item order: ingredient_name, quantity, shop_suggestion, meal_name, planned_date")
	out := fs.String("out", "output", "Directory for printable documents")
	fs.Parse(os.Args[2:])

	documents, err := storage.NewDocumentStore(*out)
	if err != nil {
		zl.Fatal("failed to initialize document store", zap.Error(err))
	}

	metricsStore := metrics.NewStore(0)
	application := app.NewApp(shopping.NewClient(cfg, zl), documents, metricsStore, cfg, zl)

	r, err := app.ParseRange(*start, *end)
	if err != nil {
		zl.Fatal("invalid date range", zap.Error(err))
	}
	filters := session.Filters{
		ExcludeMealTypes: splitMealTypes(*exclude),
		SortBy:           shopping.SortBy(*sortBy),
	}

	ctx := context.Background()
	switch command {
	case "preview":
		err = application.Preview(ctx, r)
	case "generate":
		err = application.GenerateShoppingList(ctx, r, filters)
	case "export":
		err = application.ExportShoppingList(ctx, r, filters)
	case "print":
		err = application.PrintShoppingList(ctx, r, filters)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		zl.Fatal(command+" failed", zap.Error(err))
	}

	if cfg.LogLevel == "debug" {
		application.PrintMetrics()
	}
}

func splitMealTypes(s string) []shopping.MealType {
	var types []shopping.MealType
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			types = append(types, shopping.MealType(f))
		}
	}
	return types
}

func printUsage() {
	fmt.Println("Usage: shopping-planner <command> [flags]")
	fmt.Println("\nCommands:")
	fmt.Println("  preview     Show the meals a date range covers")
	fmt.Println("  generate    Generate the shopping list for a date range")
	fmt.Println("  export      Print the server's text export of the list")
	fmt.Println("  print       Write a printable HTML document of the list")
	fmt.Println("\nFlags:")
	fmt.Println("  -start, -end    Date range (YYYY-MM-DD)")
	fmt.Println("  -exclude        Meal types to leave out, e.g. snack_am,supper")
	fmt.Println("  -sort           Item order (default ingredient_name)")
	fmt.Println("  -out            Output directory for print (default output)")
}
