package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/telconova/authgate/internal/account"
	"github.com/telconova/authgate/internal/auth"
	"github.com/telconova/authgate/internal/model"
)

// 端末入力のテスト用差し替えポイント。
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
	stdinFd      = func() int { return int(os.Stdin.Fd()) }
)

// AccountCreator はcreate-accountコマンドが必要とするアカウント発行サービス。
type AccountCreator interface {
	Create(ctx context.Context, in account.CreateInput) (*model.Account, error)
}

// NewHashPasswordCmd はパスワードのbcryptハッシュを出力するサブコマンドを生成する。
// 端末からはエコーなしで読み取り、パイプからは1行目を読み取る。
func NewHashPasswordCmd(defaultCost int) *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:           "hash-password",
		Short:         "Print a bcrypt hash for a password read from stdin",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hasher, err := auth.NewBcryptVerifier(cost)
			if err != nil {
				return err
			}

			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}

			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", defaultCost, "bcrypt cost")
	return cmd
}

// NewCreateAccountCmd は運用者がアカウントを発行するサブコマンドを生成する。
// パスワードはフラグではなく標準入力から読み取る。
func NewCreateAccountCmd(creator AccountCreator) *cobra.Command {
	var (
		name  string
		email string
		role  string
	)

	cmd := &cobra.Command{
		Use:           "create-account",
		Short:         "Create a login account",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}

			created, err := creator.Create(cmd.Context(), account.CreateInput{
				Name:     name,
				Email:    email,
				Password: password,
				Role:     role,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created account %s (%s, role=%s)\n", created.ID, created.Email, created.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&role, "role", account.DefaultRole, "account role")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// executeOperatorCmd はサブコマンドを標準入出力に接続して実行する。
func executeOperatorCmd(ctx context.Context, cmd *cobra.Command, args []string, in io.Reader, out io.Writer) error {
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(os.Stderr)
	return cmd.ExecuteContext(ctx)
}

// readSecret はパスワードを読み取る。
// 標準入力が端末の場合はプロンプトを表示しエコーなしで読み取る。
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fd := stdinFd()
	if isTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		pw, err := readPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
