package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomlink/internal/core/domain"
	signalhub "roomlink/internal/infrastructure/signal"
	webrtcinfra "roomlink/internal/infrastructure/webrtc"
	"roomlink/pkg/config"
	"roomlink/pkg/logger"

	"github.com/pion/webrtc/v3"
)

// The agent is a headless room participant: it joins a room with
// synthetic camera and microphone tracks and connects to every other
// participant, which makes it useful for soak tests and demos.
func main() {
	var (
		serverURL  = flag.String("server", "ws://localhost:3001/ws", "signaling server websocket URL")
		roomID     = flag.String("room", "", "room to join (v4 UUID, generated when empty)")
		logLevel   = flag.String("log-level", "info", "log level")
		shareAfter = flag.Duration("share-after", 0, "start a synthetic screen share after this delay (0 disables)")
		shareFor   = flag.Duration("share-for", 30*time.Second, "how long a started screen share runs")
		grace      = flag.Duration("presence-grace", config.DefaultConfig().Media.PresenceGrace, "wait for a second inbound track before reporting presence")
	)
	flag.Parse()

	zapLogger := logger.New(*logLevel)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	room := domain.RoomID(*roomID)
	if room == "" {
		room = domain.NewRoomID()
		log.Infow("generated room", "room_id", room)
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := signalhub.Dial(dialCtx, *serverURL, log)
	cancelDial()
	if err != nil {
		log.Fatalw("failed to connect to signaling server", "url", *serverURL, "error", err)
	}

	factory, err := webrtcinfra.NewPionFactory(webrtcinfra.FactoryConfig{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}, log)
	if err != nil {
		log.Fatalw("failed to create transport factory", "error", err)
	}

	screen := webrtcinfra.NewSyntheticScreen()
	orch := webrtcinfra.NewOrchestrator(
		client,
		factory,
		webrtcinfra.NewSyntheticDevice(),
		screen,
		*grace,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx, room); err != nil {
		log.Fatalw("failed to join room", "room_id", room, "error", err)
	}
	log.Infow("joined room", "room_id", room, "participant_id", client.PeerID())

	var shareTimer <-chan time.Time
	if *shareAfter > 0 {
		shareTimer = time.After(*shareAfter)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			if err := orch.Close(); err != nil {
				log.Warnw("shutdown error", "error", err)
			}
			os.Exit(0)

		case ev := <-orch.Presence():
			log.Infow("participant present",
				"peer_id", ev.PeerID,
				"audio", ev.AudioEnabled,
				"video", ev.VideoEnabled,
			)

		case ev := <-orch.MediaStates():
			log.Infow("remote media state changed",
				"peer_id", ev.PeerID,
				"kind", ev.Kind,
				"enabled", ev.Enabled,
			)

		case err := <-orch.Errors():
			log.Warnw("session error", "error", err)

		case <-shareTimer:
			shareTimer = nil
			log.Infow("starting synthetic screen share", "duration", *shareFor)
			if err := orch.SetScreenShare(ctx, true); err != nil {
				log.Warnw("screen share failed", "error", err)
				continue
			}
			go func() {
				select {
				case <-ctx.Done():
				case <-time.After(*shareFor):
					screen.End()
				}
			}()
		}
	}
}
