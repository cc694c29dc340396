package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jacksonlee411/mandi-console/internal/config"
	"github.com/jacksonlee411/mandi-console/internal/correction"
	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/internal/store"
	"github.com/jacksonlee411/mandi-console/migrations"
	"github.com/jacksonlee411/mandi-console/pkg/authz"
	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <migrate|create-user|check-config|correct-receipt> [args]")
	}

	switch os.Args[1] {
	case "migrate":
		migrate(os.Args[2:])
	case "create-user":
		createUser(os.Args[2:])
	case "check-config":
		checkConfig(os.Args[2:])
	case "correct-receipt":
		correctReceipt(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

type migrateArgs struct {
	url       string
	direction string
}

func parseMigrateArgs(args []string) (migrateArgs, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var out migrateArgs
	fs.StringVar(&out.url, "url", "", "postgres connection string (default: DATABASE_URL / DB_*)")
	if err := fs.Parse(args); err != nil {
		return migrateArgs{}, err
	}
	out.direction = "up"
	if fs.NArg() > 0 {
		out.direction = fs.Arg(0)
	}
	switch out.direction {
	case "up", "down", "status", "version":
	default:
		return migrateArgs{}, fmt.Errorf("unknown migrate direction: %s", out.direction)
	}
	if out.url == "" {
		out.url = config.DatabaseURLFromEnv()
	}
	return out, nil
}

func migrate(args []string) {
	a, err := parseMigrateArgs(args)
	if err != nil {
		fatal(err)
	}

	db, err := sql.Open("pgx", a.url)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		fatal(err)
	}

	switch a.direction {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	}
	if err != nil {
		fatal(err)
	}
}

type createUserArgs struct {
	url      string
	phone    string
	password string
	role     string
}

var rePhone = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

func parseCreateUserArgs(args []string) (createUserArgs, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var out createUserArgs
	fs.StringVar(&out.url, "url", "", "postgres connection string (default: DATABASE_URL / DB_*)")
	fs.StringVar(&out.phone, "phone", "", "login phone number")
	fs.StringVar(&out.password, "password", "", "login password")
	fs.StringVar(&out.role, "role", authz.RoleAdmin, "role name")
	if err := fs.Parse(args); err != nil {
		return createUserArgs{}, err
	}
	out.phone = strings.TrimSpace(out.phone)
	out.role = strings.TrimSpace(out.role)
	if out.phone == "" || out.password == "" {
		return createUserArgs{}, errors.New("missing --phone or --password")
	}
	if !rePhone.MatchString(out.phone) {
		return createUserArgs{}, fmt.Errorf("invalid phone: %s", out.phone)
	}
	if !knownRole(out.role) {
		return createUserArgs{}, fmt.Errorf("unknown role: %s", out.role)
	}
	if out.url == "" {
		out.url = config.DatabaseURLFromEnv()
	}
	return out, nil
}

func knownRole(role string) bool {
	for _, r := range authz.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

func createUser(args []string) {
	a, err := parseCreateUserArgs(args)
	if err != nil {
		fatal(err)
	}

	registry := mustRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, a.url)
	if err != nil {
		fatal(err)
	}
	defer pool.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
	if err != nil {
		fatal(err)
	}
	id, err := store.New(pool).Users(registry.User()).Create(ctx, a.phone, string(hash), a.role)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("[create-user] OK id=%s phone=%s role=%s\n", id, a.phone, a.role)
}

func checkConfig(args []string) {
	fs := flag.NewFlagSet("check-config", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	registry := mustRegistry()
	fmt.Printf("[check-config] resources: %s\n", strings.Join(registry.Names(), ", "))

	fmt.Printf("[check-config] correction rules: %s\n", strings.Join(correction.MustDefaultValidator().Names(), ", "))
}

type correctReceiptArgs struct {
	baseURL   string
	sid       string
	url       string
	receiptID int64
	mandiID   int64
	printed   string
	mobile    string
	mobileNA  bool
	code      string
	codeNA    bool
	name      string
}

func parseCorrectReceiptArgs(args []string) (correctReceiptArgs, error) {
	fs := flag.NewFlagSet("correct-receipt", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var out correctReceiptArgs
	fs.StringVar(&out.baseURL, "base-url", os.Getenv("ADMIN_BASE_URL"), "console base url")
	fs.StringVar(&out.sid, "sid", os.Getenv("ADMIN_SID"), "session id of a logged-in operator")
	fs.StringVar(&out.url, "url", "", "postgres connection string used to load traders (optional)")
	fs.Int64Var(&out.receiptID, "receipt", 0, "sale receipt id")
	fs.Int64Var(&out.mandiID, "mandi", 0, "mandi id of the receipt")
	fs.StringVar(&out.printed, "printed", "", "receipt printed: Yes or No")
	fs.StringVar(&out.mobile, "mobile", "", "owner mobile number")
	fs.BoolVar(&out.mobileNA, "mobile-na", false, "mobile number not available")
	fs.StringVar(&out.code, "code", "", "trader code")
	fs.BoolVar(&out.codeNA, "code-na", false, "trader code not available")
	fs.StringVar(&out.name, "name", "", "trader name when the code is unknown")
	if err := fs.Parse(args); err != nil {
		return correctReceiptArgs{}, err
	}

	out.baseURL = strings.TrimSpace(out.baseURL)
	if out.baseURL == "" {
		out.baseURL = "http://localhost:8080"
	}
	out.sid = strings.TrimSpace(out.sid)
	if out.sid == "" {
		return correctReceiptArgs{}, errors.New("missing --sid")
	}
	if out.receiptID <= 0 || out.mandiID <= 0 {
		return correctReceiptArgs{}, errors.New("missing --receipt or --mandi")
	}
	switch strings.ToLower(strings.TrimSpace(out.printed)) {
	case "yes":
		out.printed = correction.PrintedYes
	case "no":
		out.printed = correction.PrintedNo
	case "":
	default:
		return correctReceiptArgs{}, fmt.Errorf("invalid --printed: %s", out.printed)
	}
	if out.mobileNA && out.mobile != "" {
		return correctReceiptArgs{}, errors.New("--mobile and --mobile-na are exclusive")
	}
	if out.codeNA && (out.code != "" || out.name != "") {
		return correctReceiptArgs{}, errors.New("--code-na excludes --code and --name")
	}
	return out, nil
}

// row replays the form interactions an operator would make on the page.
func (a correctReceiptArgs) row(lookup correction.TraderLookup) *correction.Row {
	row := correction.NewRow(a.receiptID, a.mandiID, lookup)
	row.SelectPrinted(a.printed)
	if a.mobileNA {
		row.SetMobileNotAvailable(true)
	} else {
		row.InputMobile(a.mobile)
	}
	if a.codeNA {
		row.SetTraderCodeNotAvailable(true)
	} else {
		row.InputTraderCode(a.code)
		row.InputTraderName(a.name)
	}
	return row
}

const sidCookieName = "admin_sid"

// sessionClient signs requests the way a browser holding the session would.
type sessionClient struct {
	client *http.Client
	sid    string
	user   string
	pass   string
}

func (c sessionClient) Do(req *http.Request) (*http.Response, error) {
	req.AddCookie(&http.Cookie{Name: sidCookieName, Value: c.sid})
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	return c.client.Do(req)
}

func correctReceipt(args []string) {
	a, err := parseCorrectReceiptArgs(args)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var lookup correction.TraderLookup
	if a.url != "" {
		pool, err := pgxpool.New(ctx, a.url)
		if err != nil {
			fatal(err)
		}
		defer pool.Close()

		table := ""
		if r, ok := mustRegistry().DataExtractResource(); ok {
			table = r.Table
		}
		traders, err := store.New(pool).Receipts(table).Traders(ctx, []int64{a.mandiID})
		if err != nil {
			fatal(err)
		}
		lookup = correction.NewTraderIndex(traders)
	}

	client := sessionClient{
		client: &http.Client{Timeout: 15 * time.Second},
		sid:    a.sid,
		user:   os.Getenv("ADMIN_BASIC_AUTH_USER"),
		pass:   os.Getenv("ADMIN_BASIC_AUTH_PASS"),
	}
	res := correction.NewSubmitter(client, a.baseURL, nil).Submit(ctx, a.row(lookup))
	switch res.Outcome {
	case correction.OutcomeReload:
		fmt.Printf("[correct-receipt] OK receipt=%d\n", a.receiptID)
	case correction.OutcomePromptMobile:
		fmt.Printf("[correct-receipt] OK receipt=%d: %s\n", a.receiptID, res.Alert)
	default:
		fatalf("[correct-receipt] %s receipt=%d: %s", res.Outcome, a.receiptID, res.Alert)
	}
}

func mustRegistry() *resource.Registry {
	path := os.Getenv("ADMIN_RESOURCES_PATH")
	if path == "" {
		var err error
		if path, err = config.FindUp("config/admin/resources.yaml"); err != nil {
			fatal(err)
		}
	}
	registry, err := resource.Load(path)
	if err != nil {
		fatal(err)
	}
	return registry
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
