// Command loadtest нагружает gRPC API заказов сценариями клиента, владельца и курьера
// и печатает сводку по задержкам и исходам вызовов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/fooddelivery/internal/auth"
	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/fooddelivery/internal/service/grpc"
	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
)

// outcomeRejected: вызов прошёл, но операция вернула {ok:false}.
const outcomeRejected = "Rejected"

type loadMode string

const (
	// modeCreate: клиент создаёт заказ.
	modeCreate loadMode = "create"
	// modeCook: плюс владелец переводит заказ в Cooking и Cooked.
	modeCook loadMode = "cook"
	// modeDeliver: плюс курьер берёт заказ, забирает и доставляет.
	modeDeliver loadMode = "deliver"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	secret      string
	customerID  string
	ownerID     string
	driverID    string
	restaurant  string
	dish        string
	outputPath  string
}

// orderClient: вызовы API, которые использует нагрузка.
type orderClient interface {
	CreateOrder(ctx context.Context, in *orders.CreateOrderInput, opts ...grpc.CallOption) (*orders.CreateOrderOutput, error)
	EditOrder(ctx context.Context, in *orders.EditOrderInput, opts ...grpc.CallOption) (*orders.EditOrderOutput, error)
	TakeOrder(ctx context.Context, in *orders.TakeOrderInput, opts ...grpc.CallOption) (*orders.TakeOrderOutput, error)
}

// credentials: токены x-jwt участников сценария.
type credentials struct {
	customer string
	owner    string
	driver   string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает вызов; outcome равен codes.OK.String() для успешного вызова.
func (c *collector) record(method string, latency time.Duration, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			outcomes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if outcome == codes.OK.String() {
		stats.success++
	} else {
		stats.failed++
	}
	stats.outcomes[outcome]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		outcomes := make(map[string]int64, len(stats.outcomes))
		for outcome, count := range stats.outcomes {
			outcomes[outcome] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Outcomes:  outcomes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | cook | deliver")
	fs.StringVar(&cfg.secret, "jwt-secret", getenv("FD_JWT_SECRET"), "secret used to sign x-jwt tokens (fallback: FD_JWT_SECRET)")
	fs.StringVar(&cfg.customerID, "customer", "", "customer user id")
	fs.StringVar(&cfg.ownerID, "owner", "", "restaurant owner user id (cook, deliver)")
	fs.StringVar(&cfg.driverID, "driver", "", "driver user id (deliver)")
	fs.StringVar(&cfg.restaurant, "restaurant", "", "restaurant id")
	fs.StringVar(&cfg.dish, "dish", "", "dish id")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}

	required := map[string]string{
		"jwt-secret": cfg.secret,
		"customer":   cfg.customerID,
		"restaurant": cfg.restaurant,
		"dish":       cfg.dish,
	}
	if cfg.mode != modeCreate {
		required["owner"] = cfg.ownerID
	}
	if cfg.mode == modeDeliver {
		required["driver"] = cfg.driverID
	}
	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return cfg, fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCook:
		return modeCook, nil
	case modeDeliver:
		return modeDeliver, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func signCredentials(cfg config) (credentials, error) {
	tokens, err := auth.NewTokens(cfg.secret)
	if err != nil {
		return credentials{}, err
	}
	var creds credentials
	for _, pair := range []struct {
		userID string
		dst    *string
	}{
		{cfg.customerID, &creds.customer},
		{cfg.ownerID, &creds.owner},
		{cfg.driverID, &creds.driver},
	} {
		if pair.userID == "" {
			continue
		}
		token, err := tokens.Sign(pair.userID)
		if err != nil {
			return credentials{}, fmt.Errorf("sign token for %s: %w", pair.userID, err)
		}
		*pair.dst = token
	}
	return creds, nil
}

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	cfg, err := parseConfig(args, getenv)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	creds, err := signCredentials(cfg)
	if err != nil {
		return err
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]orderClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			return fmt.Errorf("create grpc client connection: %w", dialErr)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewOrderServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	startedAt := time.Now()
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		client := clients[workerID%len(clients)]
		go func(cli orderClient) {
			defer wg.Done()
			for range jobs {
				if runErr := runScenario(cli, cfg, creds, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(client)
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if result.FailedScenarios > 0 {
		return fmt.Errorf("%d of %d scenarios failed", result.FailedScenarios, result.TotalScenarios)
	}
	return nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario проводит один заказ настолько далеко по жизненному циклу, насколько требует режим.
func runScenario(client orderClient, cfg config, creds credentials, col *collector) error {
	scenarioStart := time.Now()
	scenarioOutcome := codes.OK.String()
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioOutcome)
	}()
	fail := func(err error) error {
		scenarioOutcome = outcomeOf(err)
		return err
	}

	var orderID string
	err := call(col, "CreateOrder", cfg.timeout, creds.customer, func(ctx context.Context) (orders.CoreOutput, error) {
		out, err := client.CreateOrder(ctx, &orders.CreateOrderInput{
			RestaurantID: cfg.restaurant,
			Items:        []orders.CreateOrderItemInput{{DishID: cfg.dish}},
		})
		if err != nil {
			return orders.CoreOutput{}, err
		}
		orderID = out.OrderID
		return out.CoreOutput, nil
	})
	if err != nil {
		return fail(err)
	}
	if cfg.mode == modeCreate {
		return nil
	}

	for _, next := range []domain.OrderStatus{domain.OrderStatusCooking, domain.OrderStatusCooked} {
		if err := editStatus(client, col, cfg.timeout, creds.owner, orderID, next); err != nil {
			return fail(err)
		}
	}
	if cfg.mode == modeCook {
		return nil
	}

	err = call(col, "TakeOrder", cfg.timeout, creds.driver, func(ctx context.Context) (orders.CoreOutput, error) {
		out, err := client.TakeOrder(ctx, &orders.TakeOrderInput{ID: orderID})
		if err != nil {
			return orders.CoreOutput{}, err
		}
		return out.CoreOutput, nil
	})
	if err != nil {
		return fail(err)
	}
	for _, next := range []domain.OrderStatus{domain.OrderStatusPickedUp, domain.OrderStatusDelivered} {
		if err := editStatus(client, col, cfg.timeout, creds.driver, orderID, next); err != nil {
			return fail(err)
		}
	}
	return nil
}

func editStatus(client orderClient, col *collector, timeout time.Duration, token, orderID string, next domain.OrderStatus) error {
	return call(col, "EditOrder", timeout, token, func(ctx context.Context) (orders.CoreOutput, error) {
		out, err := client.EditOrder(ctx, &orders.EditOrderInput{ID: orderID, Status: next})
		if err != nil {
			return orders.CoreOutput{}, err
		}
		return out.CoreOutput, nil
	})
}

// rejectedError: операция отклонена бизнес-правилом.
type rejectedError struct {
	method  string
	message string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.method, e.message)
}

// call выполняет RPC с таймаутом и токеном и записывает исход.
func call(col *collector, method string, timeout time.Duration, token string, fn func(ctx context.Context) (orders.CoreOutput, error)) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, auth.HeaderName, token)

	out, err := fn(ctx)
	if err == nil && !out.OK {
		err = &rejectedError{method: method, message: out.Error}
	}
	col.record(method, time.Since(start), outcomeOf(err))
	return err
}

func outcomeOf(err error) string {
	if err == nil {
		return codes.OK.String()
	}
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return outcomeRejected
	}
	return status.Code(err).String()
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(out,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
