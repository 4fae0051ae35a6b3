package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/xela07ax/guardian-demo/internal/address"
	"github.com/xela07ax/guardian-demo/internal/apiclient"
	"github.com/xela07ax/guardian-demo/internal/demo/server"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/infra"
	"github.com/xela07ax/guardian-demo/internal/notify"
)

type env struct {
	cfg      *infra.Config
	logger   *zap.Logger
	grpcAddr string
	token    string
	out      io.Writer
}

func (e *env) api() *apiclient.Client {
	rw := apiclient.NewReliabilityWrapper(apiclient.ReliabilityConfig{
		RateLimit:      e.cfg.API.RateLimit,
		RateBurst:      e.cfg.API.RateBurst,
		RetryAttempts:  e.cfg.API.RetryAttempts,
		AttemptTimeout: e.cfg.API.Timeout,
		CBMaxRequests:  e.cfg.API.CBMaxRequests,
		CBInterval:     e.cfg.API.CBInterval,
		CBTimeout:      e.cfg.API.CBTimeout,
	})
	return apiclient.New(e.cfg.API.BaseURL, apiclient.WithReliability(rw), apiclient.WithLogger(e.logger))
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResponse печатает конверт API; success=false превращается в ошибку выхода.
func printResponse[T any](e *env, resp domain.APIResponse[T]) error {
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return e.print(resp.Data)
}

func parseFlags(name string, args []string, define func(fs *pflag.FlagSet)) ([]string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

func oneArg(name string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s: expected exactly one argument", name)
	}
	return args[0], nil
}

// --- REST API ---

func runChildren(ctx context.Context, e *env, args []string) error {
	if _, err := parseFlags("children", args, nil); err != nil {
		return err
	}
	return printResponse(e, e.api().GetChildren(ctx))
}

func runChild(ctx context.Context, e *env, args []string) error {
	rest, err := parseFlags("child", args, nil)
	if err != nil {
		return err
	}
	id, err := oneArg("child", rest)
	if err != nil {
		return err
	}
	resp, err := e.api().GetChild(ctx, id)
	if err != nil {
		return err
	}
	return printResponse(e, resp)
}

func runCreateChild(ctx context.Context, e *env, args []string) error {
	var req domain.CreateChildRequest
	if _, err := parseFlags("create-child", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&req.Name, "name", "", "child name")
		fs.StringVar(&req.DID, "did", "", "decentralized identifier (did:...)")
	}); err != nil {
		return err
	}
	resp, err := e.api().CreateChild(ctx, req)
	if err != nil {
		return err
	}
	return printResponse(e, resp)
}

func runGuardians(ctx context.Context, e *env, args []string) error {
	var childID string
	if _, err := parseFlags("guardians", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&childID, "child", "", "filter by child ID")
	}); err != nil {
		return err
	}
	return printResponse(e, e.api().GetGuardians(ctx, childID))
}

func runAddGuardian(ctx context.Context, e *env, args []string) error {
	var (
		req   domain.AddGuardianRequest
		level string
	)
	if _, err := parseFlags("add-guardian", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&req.Address, "address", "", "guardian wallet address")
		fs.StringVar(&req.Name, "name", "", "guardian name")
		fs.StringVar(&req.Email, "email", "", "contact email")
		fs.StringVar(&level, "level", string(domain.PermissionViewer), "permission level: admin, moderator, viewer")
		fs.StringVar(&req.ChildID, "child", "", "child ID")
	}); err != nil {
		return err
	}
	req.PermissionLevel = domain.PermissionLevel(level)

	resp, err := e.api().AddGuardian(ctx, req)
	if err != nil {
		return err
	}
	return printResponse(e, resp)
}

func runRemoveGuardian(ctx context.Context, e *env, args []string) error {
	rest, err := parseFlags("remove-guardian", args, nil)
	if err != nil {
		return err
	}
	id, err := oneArg("remove-guardian", rest)
	if err != nil {
		return err
	}
	resp, err := e.api().RemoveGuardian(ctx, id)
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	fmt.Fprintf(e.out, "guardian %s removed\n", id)
	return nil
}

func runActivity(ctx context.Context, e *env, args []string) error {
	var childID string
	if _, err := parseFlags("activity", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&childID, "child", "", "filter by child ID")
	}); err != nil {
		return err
	}
	return printResponse(e, e.api().GetActivityLog(ctx, childID))
}

func runLogActivity(ctx context.Context, e *env, args []string) error {
	var childID, typ, description string
	if _, err := parseFlags("log-activity", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&childID, "child", "", "child ID")
		fs.StringVar(&typ, "type", string(domain.ActivityEntityBlocked), "activity type")
		fs.StringVar(&description, "description", "", "what happened")
	}); err != nil {
		return err
	}
	resp, err := e.api().LogActivity(ctx, childID, domain.ActivityType(typ), description)
	if err != nil {
		return err
	}
	return printResponse(e, resp)
}

// --- уведомления ---

func runWatch(ctx context.Context, e *env, args []string) error {
	var childID string
	if _, err := parseFlags("watch", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&childID, "child", "", "only notifications for this child")
	}); err != nil {
		return err
	}
	if e.cfg.Redis.Addr == "" {
		return errors.New("redis.addr is not configured")
	}

	rdb := redis.NewClient(&redis.Options{Addr: e.cfg.Redis.Addr, Password: e.cfg.Redis.Password, DB: e.cfg.Redis.DB})
	defer rdb.Close()

	sub := notify.NewSubscriber(
		notify.RedisListener(rdb, infra.RedisChanNotifications, notify.DefaultReconnectDelay, e.logger),
		e.logger)
	defer sub.Close()

	unsubscribe := sub.Subscribe(func(n domain.Notification) {
		if childID != "" && n.ChildID != childID {
			return
		}
		fmt.Fprintf(e.out, "[%s] %s\n", n.Timestamp.Local().Format("15:04:05"), n.Message)
	})
	defer unsubscribe()

	fmt.Fprintf(e.out, "watching %s (Ctrl+C to stop)\n", infra.RedisChanNotifications)
	<-ctx.Done()
	return nil
}

// --- gRPC сервис политики ---

func (e *env) policyClient() (*server.PolicyClient, func(), error) {
	conn, err := grpc.NewClient(e.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", e.grpcAddr, err)
	}
	return server.NewPolicyClient(conn), func() { conn.Close() }, nil
}

// callCtx добавляет токен и ограничивает вызов: операции идут с имитацией задержки сети.
func (e *env) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+strings.TrimPrefix(e.token, "Bearer "))
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

func runState(ctx context.Context, e *env, args []string) error {
	if _, err := parseFlags("state", args, nil); err != nil {
		return err
	}
	client, closeFn, err := e.policyClient()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	st, err := client.GetState(ctx)
	if err != nil {
		return err
	}
	return e.print(st.AsMap())
}

func runCheck(ctx context.Context, e *env, args []string) error {
	rest, err := parseFlags("check", args, nil)
	if err != nil {
		return err
	}
	addr, err := oneArg("check", rest)
	if err != nil {
		return err
	}
	client, closeFn, err := e.policyClient()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	res, err := client.CheckAddress(ctx, addr)
	if err != nil {
		return err
	}

	fields := res.GetFields()
	verdict := "BLOCKED"
	if fields["approved"].GetBoolValue() {
		verdict = "APPROVED"
	}
	fmt.Fprintf(e.out, "%s %s: %s\n", verdict, address.FormatShort(addr), fields["reason"].GetStringValue())
	if d := fields["details"].GetStringValue(); d != "" {
		fmt.Fprintf(e.out, "  %s\n", d)
	}
	return nil
}

func runFlag(ctx context.Context, e *env, args []string) error {
	var reason string
	rest, err := parseFlags("flag", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&reason, "reason", "", "why the address is dangerous")
	})
	if err != nil {
		return err
	}
	addr, err := oneArg("flag", rest)
	if err != nil {
		return err
	}
	client, closeFn, err := e.policyClient()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	if _, err := client.FlagAddress(ctx, addr, reason); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "flagged %s\n", address.FormatShort(addr))
	return nil
}

func runUnflag(ctx context.Context, e *env, args []string) error {
	rest, err := parseFlags("unflag", args, nil)
	if err != nil {
		return err
	}
	addr, err := oneArg("unflag", rest)
	if err != nil {
		return err
	}
	client, closeFn, err := e.policyClient()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	if _, err := client.UnflagAddress(ctx, addr); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "unflagged %s\n", address.FormatShort(addr))
	return nil
}
