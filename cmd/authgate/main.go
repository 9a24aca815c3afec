// authgate: CLI del flujo de autenticación de ParishDesk.
// Maneja login por credenciales, social login vía identity provider,
// el claim de perfiles existentes y el cambio de tenant.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/parishdesk/authgate/internal/api"
	"github.com/parishdesk/authgate/internal/config"
	"github.com/parishdesk/authgate/internal/guard"
	"github.com/parishdesk/authgate/internal/handshake"
	"github.com/parishdesk/authgate/internal/idp"
	"github.com/parishdesk/authgate/internal/metrics"
	"github.com/parishdesk/authgate/internal/observability/logger"
	"github.com/parishdesk/authgate/internal/store"
	"github.com/parishdesk/authgate/internal/tenant"
)

const version = "0.3.0"

// app agrupa las dependencias armadas en runE de cada comando.
type app struct {
	cfg      *config.Config
	store    *store.Store
	api      *api.Client
	provider *idp.OIDC
	coord    *handshake.Coordinator
	tenants  *tenant.Flow
}

func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "authgate",
		Version:     version,
	})

	if err := metrics.RegisterHandshake(nil); err != nil {
		return nil, err
	}

	apiClient := api.New(cfg.API.BaseURL, cfg.API.Timeout)

	var backend store.Backend
	switch cfg.Store.Driver {
	case "redis":
		backend, err = store.NewRedis(store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
	case "memory":
		backend = store.NewMemory()
	default:
		backend = store.NewFile(cfg.Store.File.Path)
	}

	st := store.New(backend, apiClient)

	provider := idp.NewOIDC(idp.OIDCConfig{
		Domain:       cfg.Provider.Domain,
		ClientID:     cfg.Provider.ClientID,
		RedirectURL:  cfg.Provider.RedirectURL,
		Scopes:       cfg.Provider.Scopes,
		CallbackAddr: cfg.Provider.CallbackAddr,
	})

	coord := handshake.New(apiClient, st, provider, handshake.Config{
		ClaimTTL: cfg.Claim.TTL,
	})

	return &app{
		cfg:      cfg,
		store:    st,
		api:      apiClient,
		provider: provider,
		coord:    coord,
		tenants:  tenant.NewFlow(apiClient, st),
	}, nil
}

// startup recarga la sesión persistida (validada contra el backend) y deja
// el provider fuera de la fase de loading.
func (a *app) startup(ctx context.Context) error {
	a.provider.Start(ctx)
	return a.store.Load(ctx)
}

func main() {
	// .env es opcional; los valores reales vienen de authgate.yaml o del
	// entorno.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:           "authgate",
		Short:         "ParishDesk auth client: sesiones, social login y tenants",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("AUTHGATE_CONFIG", "authgate.yaml"), "ruta del archivo de configuración")

	root.AddCommand(
		newLoginCmd(&cfgPath),
		newRegisterCmd(&cfgPath),
		newLogoutCmd(&cfgPath),
		newWhoamiCmd(&cfgPath),
		newStatusCmd(&cfgPath),
		newTenantCmd(&cfgPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", friendlyError(err))
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newLoginCmd(cfgPath *string) *cobra.Command {
	var (
		email    string
		password string
		social   bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Inicia sesión (credenciales o --social)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.startup(ctx); err != nil {
				return err
			}

			if !social {
				if email == "" || password == "" {
					return fmt.Errorf("login: --email y --password son requeridos (o usar --social)")
				}
				if err := a.coord.Login(ctx, email, password); err != nil {
					return err
				}
				return printSession(a.store.Get())
			}

			// Social: redirect al provider, callback local y sync.
			loginCtx, cancel := context.WithTimeout(ctx, a.cfg.Provider.LoginTimeout)
			defer cancel()
			if err := a.provider.LoginWithRedirect(loginCtx, idp.LoginOptions{}); err != nil {
				return err
			}

			switch a.coord.Evaluate(ctx) {
			case handshake.StateSynced:
				return printSession(a.store.Get())
			case handshake.StateClaimPending:
				return resolveClaimInteractive(ctx, a)
			default:
				if err := a.coord.LastError(); err != nil {
					return err
				}
				return fmt.Errorf("login did not complete (state %s)", a.coord.State())
			}
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email de la cuenta")
	cmd.Flags().StringVar(&password, "password", "", "password de la cuenta")
	cmd.Flags().BoolVar(&social, "social", false, "usar el identity provider (browser)")
	return cmd
}

// resolveClaimInteractive pregunta por el perfil existente que el backend
// encontró y resuelve el claim según la respuesta.
func resolveClaimInteractive(ctx context.Context, a *app) error {
	pc := a.coord.Claim()
	if pc == nil {
		return handshake.ErrClaimExpired
	}

	fmt.Printf("We found an existing profile for %s (%s).\n", pc.Person.FullName, pc.Person.Email)
	fmt.Print("Is this you? [y/N]: ")

	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))

	decision := api.ClaimDecision{}
	if answer == "y" || answer == "yes" {
		decision = api.ClaimDecision{Claim: true, PersonID: pc.Person.ID}
	}

	if err := a.coord.Resolve(ctx, decision); err != nil {
		return err
	}
	return printSession(a.store.Get())
}

func newRegisterCmd(cfgPath *string) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Crea una cuenta con email/password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.startup(ctx); err != nil {
				return err
			}
			if email == "" || password == "" {
				return fmt.Errorf("register: --email y --password son requeridos")
			}
			if err := a.coord.Register(ctx, email, password); err != nil {
				return err
			}
			return printSession(a.store.Get())
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email de la cuenta")
	cmd.Flags().StringVar(&password, "password", "", "password de la cuenta")
	return cmd
}

func newLogoutCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Cierra la sesión local y la del identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a.provider.Start(ctx)
			if err := a.coord.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func newWhoamiCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Muestra la sesión actual (refrescada contra el backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.startup(ctx); err != nil {
				return err
			}
			if err := a.store.Refresh(ctx); err != nil {
				return err
			}
			sess := a.store.Get()
			if sess == nil {
				fmt.Println("not logged in")
				return nil
			}
			return printSession(sess)
		},
	}
}

func newStatusCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Muestra el estado del handshake y la decisión del guard",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.startup(ctx); err != nil {
				return err
			}

			st := a.coord.Evaluate(ctx)
			d := guard.Evaluate(a.store.Get(), st)
			fmt.Printf("handshake: %s\nguard: %s\n", st, d)
			if err := a.coord.LastError(); err != nil {
				fmt.Printf("last error: %v\n", err)
			}
			return nil
		},
	}
}

func newTenantCmd(cfgPath *string) *cobra.Command {
	tenantCmd := &cobra.Command{
		Use:   "tenant",
		Short: "Operaciones de tenant (iglesia)",
	}

	var name, slug, address, city, country string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Crea una iglesia nueva y ata la sesión a ella",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.startup(ctx); err != nil {
				return err
			}
			if name == "" {
				return fmt.Errorf("tenant create: --name es requerido")
			}
			sess, err := a.tenants.CreateAndSwitch(ctx, api.CreateTenantPayload{
				Name: name, Slug: slug, Address: address, City: city, Country: country,
			})
			if err != nil {
				return err
			}
			return printSession(sess)
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "nombre de la iglesia")
	createCmd.Flags().StringVar(&slug, "slug", "", "slug opcional")
	createCmd.Flags().StringVar(&address, "address", "", "dirección")
	createCmd.Flags().StringVar(&city, "city", "", "ciudad")
	createCmd.Flags().StringVar(&country, "country", "", "país")

	switchCmd := &cobra.Command{
		Use:   "switch <tenant-id>",
		Short: "Cambia la sesión a otra iglesia",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.startup(ctx); err != nil {
				return err
			}
			sess, err := a.tenants.Switch(ctx, args[0])
			if err != nil {
				return err
			}
			return printSession(sess)
		},
	}

	tenantCmd.AddCommand(createCmd, switchCmd)
	return tenantCmd
}

func printSession(sess *store.Session) error {
	if sess == nil {
		fmt.Println("not logged in")
		return nil
	}
	out := map[string]any{
		"user":     sess.User,
		"churchId": sess.TenantID,
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// friendlyError traduce los errores conocidos a mensajes para el usuario.
func friendlyError(err error) string {
	switch {
	case errors.Is(err, api.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, api.ErrEmailExists):
		return "that email is already registered"
	case errors.Is(err, api.ErrConflictExpired), errors.Is(err, handshake.ErrClaimExpired):
		return "your session expired, please sign in again"
	case errors.Is(err, api.ErrServiceUnavailable):
		return "the service is temporarily unavailable, try again in a moment"
	}
	var partial *tenant.PartialSwitchError
	if errors.As(err, &partial) {
		return fmt.Sprintf("the church was created (id %s) but could not be activated; run 'authgate tenant switch %s' to finish", partial.TenantID, partial.TenantID)
	}
	return err.Error()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
