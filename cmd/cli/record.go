package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/interfaces/http/handlers"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
)

// recordFlags select one authorization by a token it holds.
type recordFlags struct {
	token     string
	tokenType string
	tenantID  string
}

func (f *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.token, "token", "", `token value, or "-" to read it from stdin`)
	cmd.Flags().StringVar(&f.tokenType, "type", "", "token type: state, code, access_token or refresh_token")
	cmd.Flags().StringVar(&f.tenantID, "tenant", "", "tenant the request is made for")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("tenant")
}

func (f *recordFlags) resolveToken(in io.Reader) (string, error) {
	if f.token != "-" {
		return f.token, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", errors.ErrValidation("no token on stdin")
	}
	return token, nil
}

func (f *recordFlags) requestContext() models.RequestContext {
	return models.RequestContext{TenantID: f.tenantID, Host: "authstore-admin"}
}

func (f *recordFlags) parsedType() (constants.TokenType, error) {
	if f.tokenType == "" {
		return constants.TokenTypeUnspecified, nil
	}
	t := constants.ParseTokenType(f.tokenType)
	if t == constants.TokenTypeUnspecified {
		return "", errors.ErrValidation(fmt.Sprintf("unknown token type %q", f.tokenType))
	}
	return t, nil
}

// newRecordCommand groups the authorization record subcommands.
// newRecordCommand 汇总授权记录相关的子命令。
func newRecordCommand(a *app) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect and revoke stored authorizations",
	}

	var find recordFlags
	findCmd := &cobra.Command{
		Use:   "find",
		Short: "Show the authorization holding a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.traced(cmd, func(ctx context.Context) error {
				record, err := a.findRecord(ctx, cmd, &find)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(handlers.SummarizeAuthorization(record))
			})
		},
	}
	find.register(findCmd)

	var revoke recordFlags
	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Remove the authorization holding a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.traced(cmd, func(ctx context.Context) error {
				record, err := a.findRecord(ctx, cmd, &revoke)
				if err != nil {
					return err
				}
				if err := a.components.Authorizations.Remove(ctx, revoke.requestContext(), record); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Authorization %s removed.\n", record.ID)
				return nil
			})
		},
	}
	revoke.register(revokeCmd)

	var batchSize int
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete authorizations whose tokens have all expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.traced(cmd, func(ctx context.Context) error {
				n, err := a.components.Authorizations.PurgeExpired(ctx, batchSize)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d expired authorizations removed.\n", n)
				return nil
			})
		},
	}
	purgeCmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows deleted per statement, 0 for the default")

	recordCmd.AddCommand(findCmd, revokeCmd, purgeCmd)
	return recordCmd
}

func (a *app) findRecord(ctx context.Context, cmd *cobra.Command, f *recordFlags) (*models.AuthorizationRecord, error) {
	tokenType, err := f.parsedType()
	if err != nil {
		return nil, err
	}
	token, err := f.resolveToken(cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	return a.components.Authorizations.FindByToken(ctx, f.requestContext(), token, tokenType)
}
