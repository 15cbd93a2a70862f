package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"yellowcore-go/internal/models"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, user models.UserID)

// authed resolves the bearer token to a user before calling h.
func (s *APIServer) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.svc.Auth.Validate(bearerToken(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		h(w, r, user)
	}
}

func bearerToken(r *http.Request) string {
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

func accountID(r *http.Request) (models.AccountID, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: account id %q", errMalformed, r.PathValue("id"))
	}
	return models.AccountID(id), nil
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeOK(w, payload{
		"feed_running": s.svc.Feed.Running(),
		"uptime":       time.Since(s.startTime).Round(time.Second).String(),
	})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *APIServer) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.svc.Auth.Register(req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, payload{"user_id": id})
}

func (s *APIServer) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.svc.Auth.Login(req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, payload{"token": token})
}

func (s *APIServer) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.svc.Auth.Logout(bearerToken(r))
	s.writeOK(w, nil)
}

func (s *APIServer) createAccountHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	var req struct {
		Currency string `json:"currency"`
	}
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	currency, ok := models.ParseCurrency(strings.ToUpper(req.Currency))
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %q", models.ErrUnsupportedCurrency, req.Currency))
		return
	}
	id := s.svc.Ledger.Open(user, currency)
	s.writeOK(w, payload{"account_id": id})
}

func (s *APIServer) listAccountsHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	s.writeOK(w, payload{"accounts": s.svc.Ledger.GetAccountsFor(user)})
}

func (s *APIServer) closeAccountHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	id, err := accountID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Ledger.Close(user, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, nil)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *APIServer) depositHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	s.balanceOp(w, r, user, s.svc.Ledger.Deposit)
}

func (s *APIServer) withdrawHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	s.balanceOp(w, r, user, s.svc.Ledger.Withdraw)
}

func (s *APIServer) balanceOp(w http.ResponseWriter, r *http.Request, user models.UserID,
	op func(models.UserID, models.AccountID, decimal.Decimal) (decimal.Decimal, error)) {
	id, err := accountID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req amountRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	balance, err := op(user, id, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, payload{"new_balance": balance})
}

func (s *APIServer) historyHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	id, err := accountID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter, err := parseHistoryFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	acc, err := s.svc.Ledger.GetAccount(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if acc.OwnerID != user {
		s.fail(w, r, models.ErrNotOwner)
		return
	}
	entries, err := s.svc.Ledger.GetHistory(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, payload{"history": models.FilterHistory(entries, filter)})
}

func parseHistoryFilter(r *http.Request) (models.HistoryFilter, error) {
	var f models.HistoryFilter
	q := r.URL.Query()
	if t := q.Get("filter_type"); t != "" && t != "all" {
		kind, ok := models.ParseOpKind(t)
		if !ok {
			return f, fmt.Errorf("%w: filter_type %q", errMalformed, t)
		}
		f.Kind = &kind
	}
	for key, dst := range map[string]*time.Time{"from_date": &f.From, "to_date": &f.To} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%w: %s %q", errMalformed, key, v)
		}
		*dst = ts
	}
	return f, nil
}

func (s *APIServer) transferHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	var req struct {
		From   models.AccountID `json:"from_account"`
		To     models.AccountID `json:"to_account"`
		Amount decimal.Decimal  `json:"amount"`
	}
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	src, err := s.svc.Ledger.GetAccount(req.From)
	if err != nil {
		s.fail(w, r, fmt.Errorf("source account: %w", err))
		return
	}
	dst, err := s.svc.Ledger.GetAccount(req.To)
	if err != nil {
		s.fail(w, r, fmt.Errorf("destination account: %w", err))
		return
	}
	rate := decimal.NewFromInt(1)
	if src.Currency != dst.Currency {
		if rate, err = s.svc.Feed.GetRate(src.Currency, dst.Currency); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	res, err := s.svc.Ledger.Transfer(user, req.From, req.To, req.Amount, rate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body := payload{"from_balance": res.FromBalance, "to_balance": res.ToBalance}
	if src.Currency != dst.Currency {
		body["converted_amount"] = res.ConvertedAmount
		body["rate"] = rate
	}
	s.writeOK(w, body)
}

func (s *APIServer) ratesHandler(w http.ResponseWriter, r *http.Request, _ models.UserID) {
	rates := make(map[string]decimal.Decimal)
	for _, from := range models.Currencies {
		for _, to := range models.Currencies {
			if from == to {
				continue
			}
			rate, err := s.svc.Feed.GetRate(from, to)
			if err != nil {
				continue
			}
			rates[from.String()+"_"+to.String()] = rate
		}
	}
	s.writeOK(w, payload{"rates": rates})
}

type quote struct {
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
}

func (s *APIServer) quotesHandler(w http.ResponseWriter, r *http.Request, _ models.UserID) {
	all := s.svc.Feed.GetAllQuotes()
	quotes := make([]quote, 0, len(all))
	for ticker, price := range all {
		quotes = append(quotes, quote{Ticker: ticker, Price: price})
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Ticker < quotes[j].Ticker })
	s.writeOK(w, payload{"quotes": quotes})
}

type orderRequest struct {
	Ticker    string           `json:"ticker"`
	Quantity  int64            `json:"quantity"`
	AccountID models.AccountID `json:"account_id"`
}

func (s *APIServer) buyHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	var req orderRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Engine.Buy(user, strings.ToUpper(req.Ticker), req.Quantity, req.AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, payload{"price": res.Price, "total_cost": res.TotalCost, "new_balance": res.NewBalance})
}

func (s *APIServer) sellHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	var req orderRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Engine.Sell(user, strings.ToUpper(req.Ticker), req.Quantity, req.AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, payload{"price": res.Price, "total_revenue": res.TotalRevenue, "new_balance": res.NewBalance})
}

func (s *APIServer) portfolioHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	s.writeOK(w, payload{"positions": s.svc.Engine.Valuate(user)})
}

func (s *APIServer) tradesHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	s.writeOK(w, payload{"trades": s.svc.Engine.GetTrades(user)})
}

func (s *APIServer) statisticsHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	if s.svc.Journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "trade journal disabled")
		return
	}
	stats, err := s.svc.Journal.Statistics(user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, payload{"statistics": stats})
}

func (s *APIServer) journalHandler(w http.ResponseWriter, r *http.Request, user models.UserID) {
	if s.svc.Journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "trade journal disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, fmt.Errorf("%w: limit %q", errMalformed, v))
			return
		}
		limit = n
	}
	records, err := s.svc.Journal.ListTrades(user, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, payload{"journal": records})
}
