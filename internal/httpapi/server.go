package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/andreas-portfolio/water-quality-api/internal/auth"
	"github.com/andreas-portfolio/water-quality-api/internal/metrics"
	"github.com/andreas-portfolio/water-quality-api/internal/store"
	"github.com/andreas-portfolio/water-quality-api/pkg/apierr"
)

type Server struct {
	repo *store.Repo
	auth *auth.Service
}

func New(repo *store.Repo, authSvc *auth.Service) *Server {
	return &Server{repo: repo, auth: authSvc}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(countRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/register", s.handleRegister)
	r.Post("/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/sensors", s.handleSensorCreate)
		r.Get("/sensors", s.handleSensorList)
		r.Get("/sensors/{id}/stats", s.handleSensorStats)
		r.Get("/sensors/{id}/hourly", s.handleSensorHourly)
		r.Post("/readings", s.handleReadingCreate)
		r.Get("/readings", s.handleReadingList)
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Water Quality API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.UnprocessableEntity("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		apierr.Write(w, apierr.UnprocessableEntity("username, email and password are required"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("password hash failed", "error", err)
		apierr.Write(w, apierr.InternalServerError("could not register user", err))
		return
	}

	user := &store.User{
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hash,
		IsActive:       true,
	}
	if err := s.repo.CreateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateUsername):
			apierr.Write(w, apierr.BadRequest("username already registered"))
		case errors.Is(err, store.ErrDuplicateEmail):
			apierr.Write(w, apierr.BadRequest("email already registered"))
		default:
			slog.Error("user create failed", "error", err)
			apierr.Write(w, apierr.InternalServerError("could not register user", err))
		}
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apierr.Write(w, apierr.UnprocessableEntity("invalid form body"))
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		apierr.Write(w, apierr.UnprocessableEntity("username and password are required"))
		return
	}

	// Unknown user and wrong password produce the same response.
	user, err := s.repo.FindUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			apierr.Write(w, apierr.Unauthorized("incorrect username or password"))
			return
		}
		slog.Error("user lookup failed", "error", err)
		apierr.Write(w, apierr.InternalServerError("could not log in", err))
		return
	}
	if !auth.VerifyPassword(password, user.HashedPassword) {
		apierr.Write(w, apierr.Unauthorized("incorrect username or password"))
		return
	}

	token, err := s.auth.IssueToken(user.Username, time.Now().UTC())
	if err != nil {
		slog.Error("token issue failed", "error", err)
		apierr.Write(w, apierr.InternalServerError("could not log in", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleSensorCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Location   string `json:"location"`
		SensorType string `json:"sensor_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.UnprocessableEntity("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		apierr.Write(w, apierr.UnprocessableEntity("name is required"))
		return
	}

	sensor := &store.Sensor{Name: req.Name, Location: req.Location, SensorType: req.SensorType}
	if err := s.repo.CreateSensor(r.Context(), sensor); err != nil {
		if errors.Is(err, store.ErrDuplicateSensorName) {
			apierr.Write(w, apierr.BadRequest("sensor name already registered"))
			return
		}
		slog.Error("sensor create failed", "error", err)
		apierr.Write(w, apierr.InternalServerError("could not create sensor", err))
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

func (s *Server) handleSensorList(w http.ResponseWriter, r *http.Request) {
	sensors, err := s.repo.ListSensors(r.Context())
	if err != nil {
		slog.Error("sensor list failed", "error", err)
		apierr.Write(w, apierr.InternalServerError("could not list sensors", err))
		return
	}
	writeJSON(w, http.StatusOK, sensors)
}

type statsResponse struct {
	SensorID uint     `json:"sensor_id"`
	Hours    int      `json:"hours"`
	Average  *float64 `json:"average"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Count    int64    `json:"count"`
}

func (s *Server) handleSensorStats(w http.ResponseWriter, r *http.Request) {
	sensorID, hours, ok := sensorWindowParams(w, r)
	if !ok {
		return
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.repo.ReadingStats(r.Context(), sensorID, since)
	if err != nil {
		slog.Error("reading stats failed", "sensor_id", sensorID, "error", err)
		apierr.Write(w, apierr.InternalServerError("could not compute stats", err))
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		SensorID: sensorID,
		Hours:    hours,
		Average:  stats.Average,
		Min:      stats.Min,
		Max:      stats.Max,
		Count:    stats.Count,
	})
}

func (s *Server) handleSensorHourly(w http.ResponseWriter, r *http.Request) {
	sensorID, hours, ok := sensorWindowParams(w, r)
	if !ok {
		return
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	buckets, err := s.repo.HourlyAverages(r.Context(), sensorID, since)
	if err != nil {
		slog.Error("hourly averages failed", "sensor_id", sensorID, "error", err)
		apierr.Write(w, apierr.InternalServerError("could not compute hourly averages", err))
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleReadingCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SensorID  uint       `json:"sensor_id"`
		Value     *float64   `json:"value"`
		Unit      string     `json:"unit"`
		Timestamp *time.Time `json:"timestamp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.UnprocessableEntity("invalid request body"))
		return
	}
	if req.SensorID == 0 || req.Value == nil {
		apierr.Write(w, apierr.UnprocessableEntity("sensor_id and value are required"))
		return
	}

	reading := &store.Reading{SensorID: req.SensorID, Value: *req.Value, Unit: req.Unit}
	if req.Timestamp != nil {
		reading.Timestamp = req.Timestamp.UTC()
	}
	if err := s.repo.CreateReading(r.Context(), reading); err != nil {
		if errors.Is(err, store.ErrSensorNotFound) {
			apierr.Write(w, apierr.NotFound("sensor not found"))
			return
		}
		slog.Error("reading create failed", "sensor_id", req.SensorID, "error", err)
		apierr.Write(w, apierr.InternalServerError("could not create reading", err))
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleReadingList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var sensorID *uint
	if v := strings.TrimSpace(q.Get("sensor_id")); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			apierr.Write(w, apierr.UnprocessableEntity("invalid sensor_id"))
			return
		}
		id := uint(n)
		sensorID = &id
	}

	limit := 100
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			apierr.Write(w, apierr.UnprocessableEntity("invalid limit"))
			return
		}
		limit = n
	}

	readings, err := s.repo.ListReadings(r.Context(), sensorID, limit)
	if err != nil {
		slog.Error("reading list failed", "error", err)
		apierr.Write(w, apierr.InternalServerError("could not list readings", err))
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func sensorWindowParams(w http.ResponseWriter, r *http.Request) (sensorID uint, hours int, ok bool) {
	idStr := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		apierr.Write(w, apierr.UnprocessableEntity("invalid sensor id"))
		return 0, 0, false
	}

	hours = 24
	if v := strings.TrimSpace(r.URL.Query().Get("hours")); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			apierr.Write(w, apierr.UnprocessableEntity("invalid hours"))
			return 0, 0, false
		}
		hours = h
	}
	return uint(n), hours, true
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
