// Command storefront is a terminal front for the cart and notification
// engines, mainly for exercising them against a live server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medikart/storefront/internal/client"
	"github.com/medikart/storefront/internal/config"
	"github.com/medikart/storefront/internal/domain"
	"github.com/medikart/storefront/internal/engine"
	"github.com/medikart/storefront/internal/repository"
	"github.com/medikart/storefront/internal/session"
)

type app struct {
	settings config.Settings
	logger   *slog.Logger
	sessions *session.Manager
	carts    *engine.CartEngine
	feed     *engine.NotificationEngine
	closeDB  func() error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var a app
	var token string

	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront cart and notification client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv("STOREFRONT_TOKEN")
			}
			return a.init(token)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&token, "token", "", "access token (defaults to STOREFRONT_TOKEN)")

	root.AddCommand(newCartCmd(&a))
	root.AddCommand(newNotificationsCmd(&a))
	return root
}

func (a *app) init(token string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	a.settings = settings
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

	a.sessions = session.NewManager(a.logger)
	if token != "" {
		a.sessions.SetToken(token)
	}

	httpClient := &http.Client{Timeout: settings.HTTPTimeout}
	api, err := client.New(settings.APIBaseURL, a.sessions, client.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("client.New: %w", err)
	}

	db, err := repository.OpenDB(settings.CartStorePath)
	if err != nil {
		return fmt.Errorf("repository.OpenDB: %w", err)
	}
	a.closeDB = db.Close

	store, err := repository.NewCartStore(db)
	if err != nil {
		return fmt.Errorf("repository.NewCartStore: %w", err)
	}

	a.carts, err = engine.NewCartEngine(context.Background(), engine.CartEngineConfig{
		Store:        store,
		Remote:       client.NewCartService(api),
		Availability: client.NewAvailabilityService(api),
		Session:      a.sessions,
		Logger:       a.logger,
		StaleAfter:   settings.CartStaleAfter,
	})
	if err != nil {
		return fmt.Errorf("engine.NewCartEngine: %w", err)
	}

	a.feed, err = engine.NewNotificationEngine(engine.NotificationEngineConfig{
		Service:          client.NewNotificationService(api),
		Session:          a.sessions,
		Logger:           a.logger,
		PollInterval:     settings.PollInterval,
		SuppressionDelay: settings.SuppressionDelay,
		OnDialog: func(ev engine.DialogEvent) {
			fmt.Printf("! prescription request %s expired (%s at %s)\n",
				ev.RequestID, ev.ProductName, ev.PharmacyName)
		},
	})
	if err != nil {
		return fmt.Errorf("engine.NewNotificationEngine: %w", err)
	}

	return nil
}

func (a *app) close() {
	if a.feed != nil {
		a.feed.Close()
	}
	if a.carts != nil {
		a.carts.Close()
	}
	if a.closeDB != nil {
		_ = a.closeDB()
	}
}

func newCartCmd(a *app) *cobra.Command {
	cart := &cobra.Command{Use: "cart", Short: "Inspect and mutate the cart"}

	cart.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the current cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot, err := a.carts.Load(cmd.Context())
			if err != nil {
				return err
			}
			printCart(cmd, snapshot)
			return nil
		},
	})

	add := &cobra.Command{
		Use:   "add <product-id> <pharmacy-id> [quantity]",
		Short: "Add a product from a pharmacy to the cart",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity := 1
			if len(args) == 3 {
				var err error
				if quantity, err = strconv.Atoi(args[2]); err != nil {
					return fmt.Errorf("quantity[%s] is not a number: %w", args[2], err)
				}
			}

			err := a.carts.AddItem(cmd.Context(), engine.AddItemRequest{
				ProductID:  args[0],
				PharmacyID: args[1],
				Quantity:   quantity,
			})
			if err != nil {
				return err
			}
			printCart(cmd, a.carts.Snapshot())
			return nil
		},
	}
	cart.AddCommand(add)

	cart.AddCommand(&cobra.Command{
		Use:   "set <item-id> <quantity>",
		Short: "Set an item's quantity (below 1 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity[%s] is not a number: %w", args[1], err)
			}
			if err := a.carts.UpdateQuantity(cmd.Context(), args[0], quantity); err != nil {
				return err
			}
			printCart(cmd, a.carts.Snapshot())
			return nil
		},
	})

	cart.AddCommand(&cobra.Command{
		Use:   "remove <item-id>",
		Short: "Remove an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.carts.RemoveItem(cmd.Context(), args[0]); err != nil {
				return err
			}
			printCart(cmd, a.carts.Snapshot())
			return nil
		},
	})

	cart.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.carts.Clear(cmd.Context())
		},
	})

	cart.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Merge the guest cart into the server cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := a.carts.SyncLocal(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = r.Err.Error()
				}
				cmd.Printf("%s @ %s x%d: %s\n",
					r.Item.ProductID, r.Item.PharmacyID, r.Item.Quantity, status)
			}
			return nil
		},
	})

	return cart
}

func newNotificationsCmd(a *app) *cobra.Command {
	notifications := &cobra.Command{Use: "notifications", Short: "Inspect and mutate notifications"}

	notifications.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.feed.Refresh(cmd.Context()); err != nil {
				return err
			}
			for _, n := range a.feed.List() {
				printNotification(cmd, n)
			}
			cmd.Printf("unread: %d\n", a.feed.UnreadCount())
			return nil
		},
	})

	notifications.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.feed.MarkAsRead(cmd.Context(), args[0])
		},
	})

	notifications.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.feed.MarkAllAsRead(cmd.Context())
		},
	})

	notifications.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.feed.Delete(cmd.Context(), args[0])
		},
	})

	notifications.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every notification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.feed.ClearAll(cmd.Context())
		},
	})

	notifications.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Poll the feed and print updates until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			unsubscribe := a.feed.Subscribe(func(u engine.Update) {
				cmd.Printf("-- %d notifications, %d unread\n", len(u.Notifications), u.UnreadCount)
			})
			defer unsubscribe()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	})

	return notifications
}

func printCart(cmd *cobra.Command, cart domain.Cart) {
	for _, item := range cart.Items {
		cmd.Printf("%s  %s x%d @ %s (%s)\n",
			item.ID, item.Product.Name, item.Quantity, item.UnitPrice, item.Pharmacy.Name)
	}
	cmd.Printf("items: %d, total: %s\n", cart.TotalItems, cart.TotalPrice)
}

func printNotification(cmd *cobra.Command, n domain.Notification) {
	read := " "
	if !n.IsRead {
		read = "*"
	}
	cmd.Printf("%s [%s] %s: %s\n", read, n.Type, n.Title, n.Message)
}
