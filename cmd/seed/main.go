// Command seed fills a development database with sample campus resources and reservations.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"smartcampus/internal/config"
	"smartcampus/internal/database"
	"smartcampus/internal/domain"
	"smartcampus/internal/modules/reservation"
	"smartcampus/internal/modules/resource"
	"smartcampus/internal/pkg/logger"
	"smartcampus/internal/pkg/logger/sl"
	"smartcampus/internal/repository"

	"github.com/brianvoe/gofakeit/v7"
)

var sampleResources = []resource.CreateResourceRequest{
	{
		Name:      "Conference Room A",
		Type:      domain.ResourceRoom,
		Location:  "Main Building, 1st Floor",
		Capacity:  30,
		Amenities: []string{"Projector", "Whiteboard", "Video conferencing"},
	},
	{
		Name:      "Lab Room B",
		Type:      domain.ResourceRoom,
		Location:  "Science Building, 2nd Floor",
		Capacity:  20,
		Amenities: []string{"Computers", "Specialized equipment"},
	},
	{
		Name:      "Auditorium",
		Type:      domain.ResourceVenue,
		Location:  "Arts Building, Ground Floor",
		Capacity:  200,
		Amenities: []string{"Stage", "Sound system", "Lighting control"},
	},
	{
		Name:      "Study Room 1",
		Type:      domain.ResourceRoom,
		Location:  "Library, 3rd Floor",
		Capacity:  8,
		Amenities: []string{"Whiteboard", "Quiet space"},
	},
	{
		Name:      "Video Equipment Kit",
		Type:      domain.ResourceEquipment,
		Location:  "Media Center",
		Capacity:  0,
		Amenities: []string{"Camera", "Tripod", "Microphone"},
	},
}

var purposes = []string{
	"Lecture", "Lab session", "Thesis defense", "Club meeting",
	"Group study", "Department seminar", "Guest talk", "Video shoot",
}

func main() {
	var (
		count int
		seed  uint64
		reset bool
	)
	flag.IntVar(&count, "reservations", 40, "number of random reservations to attempt")
	flag.Uint64Var(&seed, "seed", 0, "random seed, 0 for a random one")
	flag.BoolVar(&reset, "reset", true, "delete existing data first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", sl.Err(err))
		os.Exit(1)
	}
	log := logger.New(cfg.AppEnv)

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Error("db connection failed", sl.Err(err))
		os.Exit(1)
	}
	if err := repository.AutoMigrate(db); err != nil {
		log.Error("auto migrate failed", sl.Err(err))
		os.Exit(1)
	}

	if reset {
		log.Info("cleaning old data")
		for _, table := range []string{"outbox_events", "reservations", "resources"} {
			if err := db.Exec("DELETE FROM " + table).Error; err != nil {
				log.Error("cleanup failed", slog.String("table", table), sl.Err(err))
				os.Exit(1)
			}
		}
	}

	ctx := context.Background()
	admin := domain.Actor{UserID: 1, Role: domain.RoleAdmin}
	schedule := resource.NewSchedule(cfg.Location)

	resources := resource.NewService(log, repository.NewResourceRepository(db), schedule, nil)
	reservations := reservation.NewService(log, repository.NewReservationRepository(db), resources, schedule, nil, nil,
		reservation.Config{CreateAttempts: cfg.Reservations.CreateAttempts, StatusAttempts: cfg.Reservations.StatusAttempts})

	faker := gofakeit.New(seed)
	lecturerID := int64(2)

	var created []*domain.Resource
	for i, req := range sampleResources {
		// the auditorium belongs to a lecturer, study rooms are self-service
		needsApproval := req.Type != domain.ResourceRoom || req.Capacity > 10
		req.NeedsApproval = &needsApproval
		if req.Type == domain.ResourceVenue {
			req.OwnerID = &lecturerID
		}

		res, err := resources.Create(ctx, admin, req)
		if err != nil {
			log.Error("failed to create resource", slog.Int("index", i), sl.Err(err))
			os.Exit(1)
		}
		created = append(created, res)
		log.Info("resource created", slog.Int64("id", res.ID), slog.String("name", res.Name))
	}

	// next Monday in campus time, so every seeded slot is in the future
	now := time.Now().In(cfg.Location)
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, cfg.Location)
	for monday.Weekday() != time.Monday || !monday.After(now) {
		monday = monday.AddDate(0, 0, 1)
	}

	var booked, refused int
	for i := 0; i < count; i++ {
		res := created[faker.IntRange(0, len(created)-1)]
		start := monday.
			AddDate(0, 0, faker.IntRange(0, 4)).
			Add(time.Duration(faker.IntRange(8, 16)) * time.Hour).
			Add(time.Duration(faker.RandomInt([]int{0, 30})) * time.Minute)
		end := start.Add(time.Duration(faker.IntRange(1, 4)) * 30 * time.Minute)

		student := domain.Actor{UserID: int64(faker.IntRange(100, 140)), Role: domain.RoleStudent}
		_, err := reservations.Create(ctx, student, reservation.CreateReservationRequest{
			ResourceID: res.ID,
			StartTime:  start,
			EndTime:    end,
			Purpose:    faker.RandomString(purposes),
		})
		switch {
		case err == nil:
			booked++
		case errors.Is(err, reservation.ErrCapacityExceeded), errors.Is(err, reservation.ErrOutsideAvailabilityWindow):
			refused++
		default:
			log.Error("failed to create reservation", sl.Err(err))
			os.Exit(1)
		}
	}

	log.Info("seed completed",
		slog.Int("resources", len(created)),
		slog.Int("reservations", booked),
		slog.Int("refused", refused),
	)
}
