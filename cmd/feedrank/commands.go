package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feed"
)

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank one feed page for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			page, _ := cmd.Flags().GetInt("page")
			pageSize, _ := cmd.Flags().GetInt("page-size")
			subject, _ := cmd.Flags().GetString("subject")
			grade, _ := cmd.Flags().GetString("grade")
			if userID == "" {
				return errors.New("--user is required")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.engine.RankFeed(cmd.Context(), feed.Request{
				UserID:   userID,
				Page:     page,
				PageSize: pageSize,
				Filters:  core.Filters{Subject: subject, Grade: grade},
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().Int("page", 1, "page number, starting at 1")
	cmd.Flags().Int("page-size", 0, "page size (config default when 0)")
	cmd.Flags().String("subject", "", "only rank content of this subject")
	cmd.Flags().String("grade", "", "only rank content of this grade")
	return cmd
}

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Append an interaction to the configured interaction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			contentID, _ := cmd.Flags().GetString("content")
			contentType, _ := cmd.Flags().GetString("content-type")
			typ, _ := cmd.Flags().GetString("type")
			subject, _ := cmd.Flags().GetString("subject")
			grade, _ := cmd.Flags().GetString("grade")

			t := core.InteractionType(typ)
			if !t.Valid() {
				return errors.Errorf("unknown interaction type %q", typ)
			}
			if userID == "" || contentID == "" {
				return errors.New("--user and --content are required")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			a.engine.RecordInteraction(cmd.Context(), userID, contentID, contentType, t, subject, grade)
			a.engine.Flush()
			return writeJSON(cmd, map[string]any{
				"user_id":    userID,
				"content_id": contentID,
				"type":       t,
				"weight":     core.InteractionWeight(t),
			})
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().String("content", "", "content id")
	cmd.Flags().String("content-type", "post", "content type")
	cmd.Flags().String("type", string(core.InteractionView), "VIEW, LIKE, COMMENT, SHARE or ECHO")
	cmd.Flags().String("subject", "", "content subject")
	cmd.Flags().String("grade", "", "content grade")
	return cmd
}

func newDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare recent and historical interests of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			if userID == "" {
				return errors.New("--user is required")
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.engine.CheckDrift(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"user_id":        userID,
				"drifted":        res.Drifted,
				"similarity":     res.Similarity,
				"severity":       res.Severity,
				"recommendation": res.Recommendation,
			})
		},
	}
	cmd.Flags().String("user", "", "user id")
	return cmd
}

func newGradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Apply a grade transition and drop the user's cached pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			to, _ := cmd.Flags().GetString("to")
			if userID == "" || to == "" {
				return errors.New("--user and --to are required")
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			u, err := a.feeds.GetUser(cmd.Context(), userID)
			if err != nil {
				return errors.Wrapf(err, "user %s", userID)
			}
			if err := a.engine.OnGradeTransition(cmd.Context(), userID, u.Grade, to); err != nil {
				return err
			}
			a.feeds.SetUserGrade(userID, to)
			return writeJSON(cmd, map[string]any{"user_id": userID, "old_grade": u.Grade, "new_grade": to})
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().String("to", "", "new grade")
	return cmd
}
