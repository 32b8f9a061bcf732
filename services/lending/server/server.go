package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"astrolend/native/lending"
	"astrolend/observability"
	"astrolend/storage"
)

const requestLimit = 1 << 20 // 1 MiB

// Service exposes the solvency engine over HTTP. It owns the lock table that
// provides the per-bank and per-account serialisation the engine requires.
type Service struct {
	engine  *lending.Engine
	state   *storage.LedgerState
	group   uuid.UUID
	logger  *slog.Logger
	locks   *lockTable
	metrics *observability.EngineMetrics
	clock   func() time.Time
	auth    *Authenticator
}

// UseAuth installs bearer-token verification on the /v1 routes. Mutating
// routes additionally require ScopeWrite.
func (s *Service) UseAuth(auth *Authenticator) {
	s.auth = auth
}

// New constructs the HTTP service around an engine and its backing state.
func New(engine *lending.Engine, state *storage.LedgerState, group uuid.UUID, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:  engine,
		state:   state,
		group:   group,
		logger:  logger,
		locks:   newLockTable(),
		metrics: observability.Engine(),
		clock:   time.Now,
	}
}

// Router mounts every route, including liveness and Prometheus scraping.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware())
			r.Get("/banks", s.listBanks)
			r.Get("/banks/{asset}", s.getBank)
			r.Get("/accounts/{id}", s.getAccount)
			r.Get("/accounts/{id}/health", s.accountHealth)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeWrite))
			r.Post("/banks", s.createBank)
			r.Post("/banks/{asset}/accrue", s.accrueBank)
			r.Post("/accounts", s.createAccount)

			r.Post("/deposit", s.balanceOp("deposit", s.engine.Deposit, lending.DepositFootprint))
			r.Post("/withdraw", s.balanceOp("withdraw", s.engine.Withdraw, s.accountFootprint(lending.WithdrawFootprint)))
			r.Post("/borrow", s.balanceOp("borrow", s.engine.Borrow, s.accountFootprint(lending.BorrowFootprint)))
			r.Post("/repay", s.balanceOp("repay", s.engine.Repay, lending.RepayFootprint))
			r.Post("/liquidate", s.liquidate)
			r.Post("/socialize-bad-debt", s.socializeBadDebt)
		})
	})
	return r
}

func decodeRequest(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "bad_request"})
}

type operationRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type operationResponse struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Result  string `json:"result"`
}

func (req *operationRequest) parse() (lending.AccountID, string, decimal.Decimal, error) {
	id, err := lending.ParseAccountID(strings.TrimSpace(req.Account))
	if err != nil {
		return lending.AccountID{}, "", decimal.Zero, fmt.Errorf("bad account id: %w", err)
	}
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		return lending.AccountID{}, "", decimal.Zero, fmt.Errorf("missing asset")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return lending.AccountID{}, "", decimal.Zero, fmt.Errorf("bad amount: %w", err)
	}
	return id, asset, amount, nil
}

// accountFootprint adapts a footprint builder that inspects the account's
// balance sheet. When the account cannot be loaded the write-only footprint
// still covers the entities the failing operation would touch.
func (s *Service) accountFootprint(build func(*lending.Account, string) lending.Footprint) func(lending.AccountID, string) lending.Footprint {
	return func(id lending.AccountID, asset string) lending.Footprint {
		if acct, err := s.state.GetAccount(id); err == nil && acct != nil {
			return build(acct, asset)
		}
		return lending.Footprint{
			WriteBanks:    []string{asset},
			WriteAccounts: []lending.AccountID{id},
		}
	}
}

// balanceOp adapts the four single-balance flows, which share a request
// shape, a footprint, and a decimal result.
func (s *Service) balanceOp(name string, op func(lending.AccountID, string, decimal.Decimal) (decimal.Decimal, error), footprint func(lending.AccountID, string) lending.Footprint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req operationRequest
		if err := decodeRequest(r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
		id, asset, amount, err := req.parse()
		if err != nil {
			writeBadRequest(w, err)
			return
		}

		release := s.locks.acquire(footprint(id, asset))
		defer release()
		started := s.clock()
		result, err := op(id, asset, amount)
		s.metrics.ObserveOperation(name, err, s.clock().Sub(started))

		if err != nil {
			s.logger.Warn("operation failed",
				slog.String("operation", name),
				slog.String("asset", asset),
				slog.String("error", err.Error()))
			writeError(w, err)
			return
		}
		s.publishBankExposure(asset)
		s.logger.Info("operation settled",
			slog.String("operation", name),
			slog.String("asset", asset),
			slog.String("result", result.String()))
		writeJSON(w, http.StatusOK, operationResponse{
			Account: id.String(),
			Asset:   asset,
			Result:  result.String(),
		})
	}
}

type liquidateRequest struct {
	Liquidator      string `json:"liquidator"`
	Liquidatee      string `json:"liquidatee"`
	LiabilityAsset  string `json:"liabilityAsset"`
	CollateralAsset string `json:"collateralAsset"`
	Amount          string `json:"amount"`
}

func (s *Service) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	liquidator, err := lending.ParseAccountID(strings.TrimSpace(req.Liquidator))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("bad liquidator id: %w", err))
		return
	}
	liquidatee, err := lending.ParseAccountID(strings.TrimSpace(req.Liquidatee))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("bad liquidatee id: %w", err))
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("bad amount: %w", err))
		return
	}
	liabilityAsset := strings.TrimSpace(req.LiabilityAsset)
	collateralAsset := strings.TrimSpace(req.CollateralAsset)

	release := s.locks.acquire(s.liquidateFootprint(liquidator, liquidatee, liabilityAsset, collateralAsset))
	defer release()
	started := s.clock()
	receipt, err := s.engine.Liquidate(liquidator, liquidatee, liabilityAsset, collateralAsset, amount)
	s.metrics.ObserveOperation("liquidate", err, s.clock().Sub(started))

	if err != nil {
		s.logger.Warn("liquidation failed",
			slog.String("liabilityAsset", liabilityAsset),
			slog.String("collateralAsset", collateralAsset),
			slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	s.metrics.ObserveLiquidation(receipt.RepaidValue, receipt.InsuranceAmount)
	s.publishBankExposure(liabilityAsset)
	s.publishBankExposure(collateralAsset)
	s.logger.Info("liquidation settled",
		slog.String("liabilityAsset", liabilityAsset),
		slog.String("collateralAsset", collateralAsset),
		slog.String("repaid", receipt.RepaidAmount.String()),
		slog.String("seized", receipt.SeizedAmount.String()))
	writeJSON(w, http.StatusOK, receipt)
}

type socializeRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

// socializeBadDebt writes off an exhausted account's remaining liability on
// one bank. Operator-facing: the write scope gates it like every other
// mutating route.
func (s *Service) socializeBadDebt(w http.ResponseWriter, r *http.Request) {
	var req socializeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	id, err := lending.ParseAccountID(strings.TrimSpace(req.Account))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("bad account id: %w", err))
		return
	}
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		writeBadRequest(w, fmt.Errorf("missing asset"))
		return
	}

	release := s.locks.acquire(lending.RepayFootprint(id, asset))
	defer release()
	started := s.clock()
	loss, err := s.engine.SocializeBadDebt(id, asset)
	s.metrics.ObserveOperation("socialize_bad_debt", err, s.clock().Sub(started))

	if err != nil {
		s.logger.Warn("bad debt write-off failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	s.publishBankExposure(asset)
	s.logger.Info("bad debt socialized",
		slog.String("asset", asset),
		slog.String("loss", loss.String()))
	writeJSON(w, http.StatusOK, operationResponse{
		Account: id.String(),
		Asset:   asset,
		Result:  loss.String(),
	})
}

func (s *Service) liquidateFootprint(liquidator, liquidatee lending.AccountID, liabilityAsset, collateralAsset string) lending.Footprint {
	liqAcct, liqErr := s.state.GetAccount(liquidator)
	liqeeAcct, liqeeErr := s.state.GetAccount(liquidatee)
	if liqErr == nil && liqeeErr == nil && liqAcct != nil && liqeeAcct != nil {
		return lending.LiquidateFootprint(liqAcct, liqeeAcct, liabilityAsset, collateralAsset)
	}
	return lending.Footprint{
		WriteBanks:    []string{liabilityAsset, collateralAsset},
		WriteAccounts: []lending.AccountID{liquidator, liquidatee},
	}
}

func (s *Service) accrueBank(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	release := s.locks.acquire(lending.AccrueFootprint(asset))
	defer release()
	started := s.clock()
	err := s.engine.Accrue(asset)
	s.metrics.ObserveOperation("accrue", err, s.clock().Sub(started))

	if err != nil {
		writeError(w, err)
		return
	}
	s.publishBankExposure(asset)
	bank, err := s.state.GetBank(asset)
	if err != nil || bank == nil {
		writeError(w, lending.ErrInvalidBank)
		return
	}
	writeJSON(w, http.StatusOK, bankSnapshot(bank))
}

type bankView struct {
	Asset                  string             `json:"asset"`
	OracleRef              string             `json:"oracleRef"`
	AssetShareValue        string             `json:"assetShareValue"`
	LiabilityShareValue    string             `json:"liabilityShareValue"`
	TotalAssetAmount       string             `json:"totalAssetAmount"`
	TotalLiabilityAmount   string             `json:"totalLiabilityAmount"`
	Utilization            string             `json:"utilization"`
	CollectedGroupFees     string             `json:"collectedGroupFees"`
	CollectedInsuranceFees string             `json:"collectedInsuranceFees"`
	State                  string             `json:"state"`
	LastAccrual            int64              `json:"lastAccrual"`
	Config                 lending.BankConfig `json:"config"`
}

func bankSnapshot(bank *lending.Bank) bankView {
	return bankView{
		Asset:                  bank.Asset,
		OracleRef:              bank.OracleRef,
		AssetShareValue:        bank.AssetShareValue.String(),
		LiabilityShareValue:    bank.LiabilityShareValue.String(),
		TotalAssetAmount:       bank.TotalAssetAmount().String(),
		TotalLiabilityAmount:   bank.TotalLiabilityAmount().String(),
		Utilization:            bank.Utilization().String(),
		CollectedGroupFees:     bank.CollectedGroupFees.String(),
		CollectedInsuranceFees: bank.CollectedInsuranceFees.String(),
		State:                  bank.Config.State.String(),
		LastAccrual:            bank.LastAccrual,
		Config:                 bank.Config,
	}
}

func (s *Service) listBanks(w http.ResponseWriter, _ *http.Request) {
	assets, err := s.state.ListBanks()
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]bankView, 0, len(assets))
	for _, asset := range assets {
		bank, err := s.state.GetBank(asset)
		if err != nil {
			writeError(w, err)
			return
		}
		if bank != nil {
			views = append(views, bankSnapshot(bank))
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Service) getBank(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	bank, err := s.state.GetBank(asset)
	if err != nil {
		writeError(w, err)
		return
	}
	if bank == nil {
		writeError(w, fmt.Errorf("%w: %s", lending.ErrInvalidBank, asset))
		return
	}
	writeJSON(w, http.StatusOK, bankSnapshot(bank))
}

type createBankRequest struct {
	Asset     string             `json:"asset"`
	OracleRef string             `json:"oracleRef"`
	Config    lending.BankConfig `json:"config"`
}

func (s *Service) createBank(w http.ResponseWriter, r *http.Request) {
	var req createBankRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	asset := strings.TrimSpace(req.Asset)

	release := s.locks.acquire(lending.Footprint{WriteBanks: []string{asset}})
	defer release()

	existing, err := s.state.GetBank(asset)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: "bank already exists", Code: "exists"})
		return
	}
	bank, err := lending.NewBank(s.group, asset, req.OracleRef, req.Config, s.clock().Unix())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.PutBank(bank); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("bank created", slog.String("asset", asset))
	writeJSON(w, http.StatusCreated, bankSnapshot(bank))
}

func (s *Service) createAccount(w http.ResponseWriter, _ *http.Request) {
	acct := lending.NewAccount(s.group)
	if err := s.state.PutAccount(acct); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("account created", slog.String("account", acct.ID.String()))
	writeJSON(w, http.StatusCreated, map[string]string{"id": acct.ID.String()})
}

type balanceView struct {
	Bank            string `json:"bank"`
	AssetShares     string `json:"assetShares"`
	LiabilityShares string `json:"liabilityShares"`
	AssetAmount     string `json:"assetAmount,omitempty"`
	LiabilityAmount string `json:"liabilityAmount,omitempty"`
}

type accountView struct {
	ID       string        `json:"id"`
	Balances []balanceView `json:"balances"`
}

func (s *Service) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := lending.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("bad account id: %w", err))
		return
	}
	acct, err := s.state.GetAccount(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if acct == nil {
		writeError(w, fmt.Errorf("%w: %s", lending.ErrInvalidAccount, id))
		return
	}

	view := accountView{ID: acct.ID.String(), Balances: []balanceView{}}
	for i := range acct.Balances {
		bal := &acct.Balances[i]
		if bal.Empty() {
			continue
		}
		bv := balanceView{
			Bank:            bal.Bank,
			AssetShares:     bal.AssetShares.String(),
			LiabilityShares: bal.LiabilityShares.String(),
		}
		if bank, err := s.state.GetBank(bal.Bank); err == nil && bank != nil {
			bv.AssetAmount = bank.AssetAmount(bal.AssetShares).String()
			bv.LiabilityAmount = bank.LiabilityAmount(bal.LiabilityShares).String()
		}
		view.Balances = append(view.Balances, bv)
	}
	writeJSON(w, http.StatusOK, view)
}

func parseRequirement(raw string) (lending.RequirementType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "initial":
		return lending.Initial, nil
	case "maintenance":
		return lending.Maintenance, nil
	case "equity":
		return lending.Equity, nil
	default:
		return lending.Initial, fmt.Errorf("unknown requirement %q", raw)
	}
}

type healthView struct {
	Requirement string `json:"requirement"`
	Collateral  string `json:"collateral"`
	Liability   string `json:"liability"`
	Factor      string `json:"factor,omitempty"`
	Unbounded   bool   `json:"unbounded"`
	Healthy     bool   `json:"healthy"`
}

func (s *Service) accountHealth(w http.ResponseWriter, r *http.Request) {
	id, err := lending.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("bad account id: %w", err))
		return
	}
	req, err := parseRequirement(r.URL.Query().Get("requirement"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	report, err := s.engine.AccountHealth(id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	view := healthView{
		Requirement: req.String(),
		Collateral:  report.Collateral.String(),
		Liability:   report.Liability.String(),
		Unbounded:   report.Unbounded,
		Healthy:     report.Healthy(),
	}
	if !report.Unbounded {
		view.Factor = report.Factor.String()
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) publishBankExposure(asset string) {
	bank, err := s.state.GetBank(asset)
	if err != nil || bank == nil {
		return
	}
	s.metrics.SetBankExposure(asset,
		bank.Utilization(),
		bank.TotalAssetAmount(),
		bank.TotalLiabilityAmount(),
		bank.AssetShareValue,
		bank.LiabilityShareValue)
}
