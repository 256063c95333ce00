// Package httpserver adapts OrderService to a small REST surface.
// There is no authentication; callers are trusted simulation drivers.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"

	"tycho/domain/book"
	"tycho/domain/pricing"
	"tycho/service"
)

type Server struct {
	echo   *echo.Echo
	svc    *service.OrderService
	mapper pricing.Mapper
	log    *slog.Logger
}

func New(svc *service.OrderService, mapper pricing.Mapper, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, svc: svc, mapper: mapper, log: log}

	e.POST("/orders", s.placeOrder)
	e.DELETE("/orders/:client_id", s.cancelOrder)
	e.PUT("/orders/:client_id", s.replaceOrder)
	e.GET("/book/top", s.bookTop)
	e.GET("/book/levels/:side/:idx", s.levelQty)
	e.GET("/trades", s.trades)

	return s
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// -------------------- Requests --------------------

type placeRequest struct {
	ClientID uint64 `json:"client_id"`
	Side     string `json:"side"`     // "buy" | "sell"
	Type     string `json:"type"`     // "limit" | "market"
	TIF      string `json:"tif"`      // "gfd" | "ioc" | "fok"
	PriceIdx *int32 `json:"price_idx"`
	Price    string `json:"price"` // decimal; alternative to price_idx
	Qty      int64  `json:"qty"`
}

type replaceRequest struct {
	PriceIdx *int32 `json:"price_idx"`
	Price    string `json:"price"`
	Qty      int64  `json:"qty"`
}

// -------------------- Handlers --------------------

func (s *Server) placeOrder(c echo.Context) error {
	var req placeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	side, err := parseSide(req.Side)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Type == "market" {
		res, err := s.svc.PlaceMarket(req.ClientID, side, req.Qty)
		if err != nil {
			return s.commandError(err)
		}
		return c.JSON(http.StatusOK, placeResponse("ok", res))
	}

	priceIdx, err := s.resolvePriceIdx(req.PriceIdx, req.Price)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tif, err := parseTIF(req.TIF)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := s.svc.PlaceLimit(req.ClientID, side, priceIdx, req.Qty, tif)
	switch {
	case errors.Is(err, book.ErrKilledByFOK):
		return c.JSON(http.StatusOK, placeResponse("killed_by_fok", res))
	case errors.Is(err, book.ErrLevelOverflow), errors.Is(err, book.ErrPoolExhausted):
		// Matches performed before the failure are committed trades;
		// report them alongside the rejection.
		resp := placeResponse("rest_failed", res)
		resp["error"] = err.Error()
		return c.JSON(http.StatusConflict, resp)
	case err != nil:
		return s.commandError(err)
	}
	return c.JSON(http.StatusOK, placeResponse("ok", res))
}

func (s *Server) cancelOrder(c echo.Context) error {
	clientID, err := strconv.ParseUint(c.Param("client_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid client id")
	}

	cancelled, err := s.svc.Cancel(clientID)
	if err != nil {
		return s.commandError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"cancelled": cancelled})
}

func (s *Server) replaceOrder(c echo.Context) error {
	clientID, err := strconv.ParseUint(c.Param("client_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid client id")
	}

	var req replaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	priceIdx, err := s.resolvePriceIdx(req.PriceIdx, req.Price)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	replaced, err := s.svc.Replace(clientID, priceIdx, req.Qty)
	if err != nil {
		return s.commandError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"replaced": replaced})
}

func (s *Server) bookTop(c echo.Context) error {
	top := s.svc.Top()

	resp := map[string]any{
		"has_bid": top.HasBid,
		"has_ask": top.HasAsk,
	}
	if top.HasBid {
		resp["bid_idx"] = top.BidIdx
		resp["bid_price"] = s.mapper.ToPrice(top.BidIdx).String()
		resp["bid_qty"] = top.BidQty
	}
	if top.HasAsk {
		resp["ask_idx"] = top.AskIdx
		resp["ask_price"] = s.mapper.ToPrice(top.AskIdx).String()
		resp["ask_qty"] = top.AskQty
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) levelQty(c echo.Context) error {
	side, err := parseSide(c.Param("side"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	idx, err := strconv.ParseInt(c.Param("idx"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"side": side.String(),
		"idx":  idx,
		"qty":  s.svc.LevelQty(side, int32(idx)),
	})
}

func (s *Server) trades(c echo.Context) error {
	n := 100
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		n = v
	}

	trades := s.svc.Trades(n)
	out := make([]map[string]any, 0, len(trades))
	for _, t := range trades {
		out = append(out, map[string]any{
			"taker":     t.TakerClient,
			"maker":     t.MakerClient,
			"qty":       t.Qty,
			"price_idx": t.PriceIdx,
			"price":     s.mapper.ToPrice(t.PriceIdx).String(),
			"ts":        t.TS,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// -------------------- Helpers --------------------

func placeResponse(status string, res book.Result) map[string]any {
	return map[string]any{
		"status": status,
		"trades": res.Trades,
		"rested": res.Rested,
	}
}

func (s *Server) resolvePriceIdx(idx *int32, price string) (int32, error) {
	if idx != nil {
		return *idx, nil
	}
	if price == "" {
		return 0, errors.New("price_idx or price is required")
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return 0, errors.New("invalid price")
	}
	return s.mapper.ToIndex(p), nil
}

func (s *Server) commandError(err error) error {
	switch {
	case errors.Is(err, book.ErrInvalidPrice), errors.Is(err, book.ErrInvalidQuantity):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, book.ErrPoolExhausted), errors.Is(err, book.ErrLevelOverflow):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		s.log.Error("command failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func parseSide(raw string) (book.Side, error) {
	switch raw {
	case "buy", "bid":
		return book.Buy, nil
	case "sell", "ask":
		return book.Sell, nil
	default:
		return 0, errors.New("side must be buy or sell")
	}
}

func parseTIF(raw string) (book.TimeInForce, error) {
	switch raw {
	case "", "gfd":
		return book.GFD, nil
	case "ioc":
		return book.IOC, nil
	case "fok":
		return book.FOK, nil
	default:
		return 0, errors.New("tif must be gfd, ioc or fok")
	}
}
