// Command ctrlr is the terminal client for the ctrl-r conversion relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"ctrlr/internal/catalog"
	"ctrlr/internal/client"
	"ctrlr/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"golang.org/x/term"
)

func main() {
	_ = godotenv.Load()

	backendURL := flag.String("backend", os.Getenv("CTRLR_BACKEND_URL"), "relay base URL")
	target := flag.String("to", "", "target format (defaults to pdf when offered)")
	noPreview := flag.Bool("no-preview", false, "disable opening the converted file")
	noSummary := flag.Bool("no-summary", false, "hide the summary panel")
	noChat := flag.Bool("no-chat", false, "hide the question panel")
	flag.Parse()

	features := client.AllFeatures()
	features.Preview = !*noPreview
	features.Summary = !*noSummary
	features.Chat = !*noChat && features.Summary

	cat := catalog.Default()
	backend := client.NewHTTPBackend(*backendURL)
	session := client.NewSession(backend, cat, client.Options{Features: features})

	if flag.NArg() > 0 {
		f, err := client.FileFromPath(flag.Arg(0))
		if err != nil {
			log.Fatalf("pick file: %v", err)
		}
		session.Pick(f)
		if *target != "" {
			if err := session.SelectTarget(*target); err != nil {
				log.Fatalf("select target: %v", err)
			}
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) || *target != "" {
			if err := convertOnce(session); err != nil {
				log.Fatalf("convert: %v", err)
			}
			return
		}
		if err := session.ProceedToOptions(); err != nil {
			log.Fatalf("select file: %v", err)
		}
	}

	p := tea.NewProgram(tui.New(session, cat.Version()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("run tui: %v", err)
	}
}

// convertOnce runs a single conversion and prints the resulting link.
func convertOnce(session *client.Session) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := session.ProceedToOptions(); err != nil {
		return err
	}
	if err := session.StartConversion(ctx); err != nil {
		return err
	}
	link, err := session.OpenResult()
	if err != nil {
		return err
	}
	fmt.Println(link)
	return nil
}
