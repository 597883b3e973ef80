package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"forward-elements/internal/adapter/api"
	"forward-elements/internal/adapter/formpage"
	"forward-elements/internal/adapter/frame"
	"forward-elements/internal/adapter/store"
	"forward-elements/internal/domain"
	"forward-elements/internal/infra/config"
	"forward-elements/internal/usecase/cardform"
	"forward-elements/internal/usecase/checkout"
	"forward-elements/internal/usecase/element"
	"forward-elements/internal/usecase/eventbus"
)

// The checkout binary walks the whole capture flow in one process: it
// creates a session over the payments API, mounts a card form element
// against an embedded form page, fills both sides, and submits.

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// cardformConfig maps the element config section onto a card form client
// configuration. Zero values fall through to the client's own defaults.
func cardformConfig(el config.ElementConfig) cardform.Config {
	return cardform.Config{
		SubmitTimeout:   el.SubmitTimeout,
		ValidateTimeout: el.ValidateTimeout,
		MountGrace:      el.MountGrace,
		TestCards:       el.TestCards,
	}
}

type loopbackNavigator struct {
	frame element.Frame
}

func (n *loopbackNavigator) Open(ctx context.Context, sessionURL string) (element.Frame, error) {
	return n.frame, nil
}

func run() error {
	var (
		amount   = flag.Int64("amount", 1000, "payment amount in cents")
		card     = flag.String("card", "4242424242424242", "card number to capture")
		expiry   = flag.String("expiry", "12/30", "card expiry, MM/YY")
		cvv      = flag.String("cvv", "123", "card cvv")
		name     = flag.String("name", "Ada Lovelace", "cardholder name")
		email    = flag.String("email", "ada@example.com", "payor email")
		apiKey   = flag.String("api-key", "sk_demo", "payments API key")
		confPath = flag.String("config", "./config.yaml", "config file path")
	)
	flag.Parse()

	// Element protocol settings (round-trip timeouts, test-card fast path)
	// come from the same config file the elements binary reads.
	cfg, err := config.Load(*confPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bus := eventbus.New(log)
	defer bus.Close()
	stores := store.NewMemory().Stores()

	// Payments API on an ephemeral port, with a typed client in front.
	apiSrv := api.NewServer(api.Config{
		BaseURL: "https://pay.example.com",
		APIKey:  *apiKey,
	}, stores, bus, log)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	httpSrv := &http.Server{Handler: apiSrv.Handler()}
	go httpSrv.Serve(listener)
	defer httpSrv.Close()

	apiClient := api.NewClient(api.ClientConfig{
		BaseURL: "http://" + listener.Addr().String(),
		APIKey:  *apiKey,
		Logger:  log,
	})

	created, err := apiClient.CreatePaymentSession(ctx, domain.CreatePaymentSessionRequest{
		Amount:   float64(*amount),
		Currency: "usd",
		Methods:  []domain.PaymentMethodKind{domain.MethodCard},
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	log.Info("payment session created", "session_id", created.ID, "url", created.URL)

	// Embedded form page wired to the host over an in-process frame pair.
	page := formpage.New(formpage.Config{
		SessionURL: created.URL,
		Sessions:   stores.Sessions,
		Methods:    stores.Methods,
		Logger:     log,
		Capabilities: []domain.Capability{
			domain.CapDirectSubmit,
			domain.CapCardValues,
		},
	})

	origin, err := domain.Origin(created.URL)
	if err != nil {
		return fmt.Errorf("session url: %w", err)
	}
	hostFrame, pageConn := frame.NewLoopback(origin,
		frame.WithCardValues(page.CardNumber),
		frame.WithDirectSubmit(page.ValidateAndSubmit),
	)
	pageCtx, stopPage := context.WithCancel(ctx)
	defer stopPage()
	go page.Serve(pageCtx, pageConn)

	ccfg := cardformConfig(cfg.Element)
	ccfg.SessionURL = created.URL
	ccfg.Bus = bus
	ccfg.Logger = log
	ccfg.OnReady = func() { log.Info("card form ready") }
	ccfg.OnSuccess = func(methodID string) { log.Info("card tokenized", "method_id", methodID) }
	ccfg.OnError = func(kind domain.ErrorKind, message string) {
		log.Warn("card form error", "kind", kind, "message", message)
	}
	client, err := cardform.New(ccfg)
	if err != nil {
		return fmt.Errorf("card form: %w", err)
	}
	if err := client.Mount(ctx, &loopbackNavigator{frame: hostFrame}); err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	defer client.Unmount()

	// Simulates the cardholder typing into the embedded form.
	page.SetForm(formpage.CardForm{
		CardNumber:     *card,
		CardholderName: *name,
		ExpiryDate:     *expiry,
		CVV:            *cvv,
	})

	orch := checkout.New(created.PaymentSession, client, apiClient, log)
	payment, err := orch.Checkout(ctx, checkout.PayorForm{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     *email,
	})
	if err != nil {
		var vf *checkout.ValidationFailure
		if errors.As(err, &vf) {
			return fmt.Errorf("checkout rejected, first invalid field %q: %v", vf.FirstErrorField, vf.ErrorMessages)
		}
		return fmt.Errorf("checkout: %w", err)
	}

	out, _ := json.MarshalIndent(payment, "", "  ")
	fmt.Println(string(out))
	return nil
}
