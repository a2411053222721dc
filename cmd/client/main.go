// Command client is a line-oriented RoomSpeak terminal client. Plain lines
// are sent as chat; lines starting with "/" are commands (see /help).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/client"
	"github.com/NicolasHaas/roomspeak/pkg/logging"
	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
	"github.com/NicolasHaas/roomspeak/pkg/version"
)

const voiceKeepalive = 10 * time.Second

func main() {
	serverAddr := flag.String("server", "127.0.0.1:12345", "Control plane address")
	voiceAddr := flag.String("voice", "", "Voice relay address (empty disables voice)")
	useTLS := flag.Bool("tls", false, "Connect to the control plane over TLS")
	username := flag.String("user", "", "Username")
	password := flag.String("password", "", "Password (default $ROOMSPEAK_PASSWORD, else prompted)")
	register := flag.Bool("register", false, "Register the account before logging in")
	profileName := flag.String("profile", "", "Saved profile to connect with")
	profilePath := flag.String("profiles", client.DefaultProfilePath(), "Profile file")
	saveProfile := flag.String("save-profile", "", "Save this connection under the given profile name")
	logOpts := logging.Options{Level: "warn"}
	if err := logging.LoadEnv(&logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&logOpts.Level, "log-level", logOpts.Level, "Log level: "+logging.LevelNames())
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("roomspeak-client", version.Full())
		return
	}

	logOpts.Output = os.Stderr
	if err := logging.Setup(logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	profiles := client.NewProfileStore(*profilePath)
	if err := profiles.Load(); err != nil {
		slog.Warn("load profiles", "err", err)
	}
	if *profileName != "" {
		p := profiles.Find(*profileName)
		if p == nil {
			fmt.Fprintf(os.Stderr, "unknown profile %q\n", *profileName)
			os.Exit(1)
		}
		*serverAddr, *useTLS = p.ControlAddr, p.TLS
		if *voiceAddr == "" {
			*voiceAddr = p.VoiceAddr
		}
		if *username == "" {
			*username = p.Username
		}
	}

	stdin := bufio.NewScanner(os.Stdin)
	if *username == "" {
		*username = prompt(stdin, "username: ")
	}
	if *password == "" {
		*password = os.Getenv("ROOMSPEAK_PASSWORD")
	}
	if *password == "" {
		*password = prompt(stdin, "password: ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	ctrl, err := client.Dial(ctx, *serverAddr, *useTLS)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer ctrl.Close()

	if *register {
		if err := ctrl.Register(*username, *password); err != nil {
			fmt.Fprintf(os.Stderr, "register: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("registered %s\n", *username)
	}
	login, err := ctrl.Login(*username, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("logged in as %s in #%s%s\n", login.Username, login.Room, adminSuffix(login.IsAdmin))

	if *saveProfile != "" {
		profiles.Put(client.Profile{
			Name:        *saveProfile,
			ControlAddr: *serverAddr,
			VoiceAddr:   *voiceAddr,
			TLS:         *useTLS,
			Username:    *username,
		})
		profiles.Touch(*saveProfile, time.Now().Unix())
		if err := profiles.Save(); err != nil {
			slog.Warn("save profile", "err", err)
		}
	}

	ctrl.SetEventHandler(func(ev pb.Event) {
		fmt.Println(formatEvent(ev))
	})
	ctrl.StartReceiving()

	if *voiceAddr != "" {
		vc, err := client.NewVoiceClient(*voiceAddr, login.VoiceToken)
		if err != nil {
			slog.Error("voice disabled", "err", err)
		} else {
			defer vc.Close()
			go runVoice(vc, ctrl.Done())
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		for stdin.Scan() {
			lines <- stdin.Text()
		}
	}()

	for {
		select {
		case <-ctrl.Done():
			fmt.Println("disconnected")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			req, err := parseLine(line)
			switch {
			case errors.Is(err, errQuit):
				return
			case errors.Is(err, errHelp):
				printHelp(os.Stdout)
				continue
			case errors.Is(err, errEmpty):
				continue
			case err != nil:
				fmt.Println(err)
				continue
			}
			if err := ctrl.Send(req); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
				return
			}
		}
	}
}

// runVoice keeps the relay's endpoint record fresh and reports who is
// speaking. This client has no audio devices; frames are only counted.
func runVoice(vc *client.VoiceClient, done <-chan struct{}) {
	vc.StartReceiving()
	_ = vc.SendVoice(nil)

	ticker := time.NewTicker(voiceKeepalive)
	defer ticker.Stop()
	frames := make(map[uint32]int)
	for {
		select {
		case <-done:
			return
		case <-vc.Done():
			return
		case <-ticker.C:
			if err := vc.SendVoice(nil); err != nil {
				slog.Debug("voice keepalive", "err", err)
			}
			for sid, n := range frames {
				slog.Info("voice received", "session", sid, "frames", n)
			}
			clear(frames)
		case pkt := <-vc.IncomingPackets:
			frames[pkt.SessionID]++
		}
	}
}

func prompt(s *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !s.Scan() {
		return ""
	}
	return strings.TrimSpace(s.Text())
}

func adminSuffix(admin bool) string {
	if admin {
		return " (admin)"
	}
	return ""
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `commands:
  /join <room>             move to a room
  /create <room>           create a room
  /rooms                   list rooms
  /users                   list users in your room
  /register <user> <pass>  register another account
  /mute|/unmute <user>     admin: toggle chat for a user
  /kick <user>             admin: disconnect a user
  /ban <user> [reason]     admin: ban a user
  /unban <user>            admin: lift a ban
  /ping                    round trip check
  /quit                    leave
anything else is sent as chat
`)
}
