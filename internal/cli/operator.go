package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

type createOperatorOptions struct {
	email         string
	name          string
	role          string
	password      string
	passwordStdin bool
}

// NewCreateOperatorCommand creates the create-operator command.
func NewCreateOperatorCommand(rootOpts *RootOptions, connect Connector) *cobra.Command {
	opts := &createOperatorOptions{}

	cmd := &cobra.Command{
		Use:          "create-operator",
		Short:        "Create a dashboard operator account",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateOperator(rootOpts, opts, connect, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "operator email (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.role, "role", string(models.RoleViewer), "role (ADMIN|VIEWER)")
	cmd.Flags().StringVar(&opts.password, "password", "", "password")
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runCreateOperator(rootOpts *RootOptions, opts *createOperatorOptions, connect Connector, cmd *cobra.Command) error {
	email := strings.ToLower(strings.TrimSpace(opts.email))
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email %q", opts.email)
	}
	role := models.UserRole(strings.ToUpper(strings.TrimSpace(opts.role)))
	if !role.Valid() {
		return fmt.Errorf("invalid role %q: must be ADMIN or VIEWER", opts.role)
	}

	password := opts.password
	if opts.passwordStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	backends, release, err := connect(cmd.Context(), Needs{Postgres: true})
	if err != nil {
		return err
	}
	defer release()

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(opts.name),
		Role:         role,
		Active:       true,
	}
	if err := backends.Operators.Create(cmd.Context(), user); err != nil {
		return err
	}
	verbosef(rootOpts, cmd, "operator %s stored", user.ID)

	info := models.UserInfo{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role}
	return emit(rootOpts, cmd.OutOrStdout(), info, func(w io.Writer) {
		fmt.Fprintf(w, "created %s operator %s (%s)\n", info.Role, info.Email, info.ID)
	})
}
