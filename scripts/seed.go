package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/hospital-appointment-api/internal/adapters/spreadsheet"
	"github.com/zatekoja/hospital-appointment-api/internal/domain/entities"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/observability"
	"github.com/zatekoja/hospital-appointment-api/pkg/config"
)

// seed fills the configured appointment workbook with sample bookings.
// RESET_STORE=true removes the existing workbook first.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger("seed", "development", cfg.Log.Level)

	loc, err := cfg.Store.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid store time zone")
	}

	store, err := spreadsheet.NewAppointmentAdapter(cfg.Store.Path,
		spreadsheet.WithSheet(cfg.Store.Sheet),
		spreadsheet.WithLocation(loc),
		spreadsheet.WithReplacePolicy(cfg.Store.ReplaceMaxAttempts, cfg.Store.ReplaceDelay),
		spreadsheet.WithLogger(observability.Component("spreadsheet")),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create appointment store")
	}

	if os.Getenv("RESET_STORE") == "true" {
		log.Info().Str("path", store.Path()).Msg("RESET_STORE=true detected, removing workbook before seeding")
		if err := os.Remove(store.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Fatal().Err(err).Msg("failed to reset workbook")
		}
	}

	ctx := context.Background()
	if err := store.EnsureInitialized(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize workbook")
	}

	tomorrow := time.Now().In(loc).Truncate(time.Hour).Add(24 * time.Hour)
	appointments := []entities.Appointment{
		{Name: "Amina Bello", Contact: "+234 803 555 0101", Gender: "Female", AppointmentTime: tomorrow.Add(9 * time.Hour), Problem: "Persistent cough", Status: entities.AppointmentStatusWaiting},
		{Name: "Chinedu Okafor", Contact: "+234 805 555 0102", Gender: "Male", AppointmentTime: tomorrow.Add(10 * time.Hour), Problem: "Knee pain", Status: "Confirmed"},
		{Name: "Fatima Yusuf", Contact: "+234 807 555 0103", Gender: "Female", AppointmentTime: tomorrow.Add(11 * time.Hour), Problem: "Antenatal check-up", Status: entities.AppointmentStatusWaiting},
		{Name: "Tunde Adeyemi", Contact: "+234 809 555 0104", Gender: "Male", AppointmentTime: tomorrow.Add(14 * time.Hour), Problem: "Blood pressure review", Status: "Done"},
		{Name: "Ngozi Eze", Contact: "+234 802 555 0105", Gender: "Female", AppointmentTime: tomorrow.Add(15 * time.Hour), Problem: "Migraine", Status: entities.AppointmentStatusWaiting},
	}

	seeded := 0
	for i := range appointments {
		if err := store.Append(ctx, &appointments[i]); err != nil {
			log.Error().Err(err).Str("name", appointments[i].Name).Msg("failed to seed appointment")
			continue
		}
		seeded++
	}

	log.Info().Int("seeded", seeded).Str("path", store.Path()).Msg("seeding complete")
}
