package fkorm_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/fkorm"
	"github.com/syssam/fkorm/compiler"
	"github.com/syssam/fkorm/compiler/load"
	"github.com/syssam/fkorm/diag"
	"github.com/syssam/fkorm/dialect"
	"github.com/syssam/fkorm/dialect/sql"
	"github.com/syssam/fkorm/schema"
)

const testSchema = `
roles:
  name: VARCHAR(32),unique
countries:
  name: VARCHAR(64),unique
users:
  username: VARCHAR(64),unique
  country: ":countries"
  role: {type: ":roles", nullable: true}
profiles:
  $primary: [owner]
  owner: VARCHAR(32)
  settings: JSON
`

var (
	users     = schema.TableName("users")
	countries = schema.TableName("countries")
	profiles  = schema.TableName("profiles")
)

func compileTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	desc, err := load.ParseSchema([]byte(testSchema))
	require.NoError(t, err)
	s, err := compiler.Compile(desc, compiler.WithLogger(diag.Discard()))
	require.NoError(t, err)
	return s
}

func newClient(t *testing.T, opts ...fkorm.Option) (*fkorm.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	opts = append([]fkorm.Option{fkorm.WithLogger(diag.Discard())}, opts...)
	return fkorm.New(compileTestSchema(t), sql.OpenDB(dialect.MySQL, db), opts...), mock
}

const (
	selectCountryID = "SELECT `id` FROM `countries` WHERE `name` = ? LIMIT 2 OFFSET 0"
	selectRoleID    = "SELECT `id` FROM `roles` WHERE `name` = ? LIMIT 2 OFFSET 0"
	selectUser      = "SELECT * FROM `users` WHERE `username` = ? LIMIT 2 OFFSET 0"
	selectCountry   = "SELECT * FROM `countries` WHERE `id` = ? LIMIT 2 OFFSET 0"
	upsertUser      = "INSERT INTO `users` SET `username` = ?, `country` = ? " +
		"ON DUPLICATE KEY UPDATE `username` = VALUES(`username`), `country` = VALUES(`country`)"
)

func idRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	return rows
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "country", "role"})
}

func TestSave(t *testing.T) {
	ctx := context.Background()

	t.Run("ResolvesForeignKeys", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery(selectCountryID).WithArgs("Estonia").WillReturnRows(idRows(3))
		mock.ExpectExec(upsertUser).WithArgs("mark", int64(3)).WillReturnResult(sqlmock.NewResult(7, 1))

		row := fkorm.Row{"username": "mark", "country": fkorm.Row{"name": "Estonia"}}
		saved, err := client.Save(ctx, users, row)
		require.NoError(t, err)
		assert.Equal(t, fkorm.Row{"id": int64(7), "username": "mark", "country": int64(3)}, saved)
		assert.Equal(t, fkorm.Row{"username": "mark", "country": fkorm.Row{"name": "Estonia"}}, row, "input row is not modified")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownReference", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery(selectCountryID).WithArgs("Atlantis").WillReturnRows(idRows())

		_, err := client.Save(ctx, users, fkorm.Row{"username": "mark", "country": fkorm.Row{"name": "Atlantis"}})
		require.Error(t, err)
		assert.True(t, fkorm.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("New", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectExec("INSERT INTO `users` SET `username` = ?, `country` = ?").
			WithArgs("anna", 3).
			WillReturnResult(sqlmock.NewResult(8, 1))

		saved, err := client.Save(ctx, users, fkorm.Row{"username": "anna", "country": 3}, fkorm.WithSaveMode(fkorm.SaveNew))
		require.NoError(t, err)
		assert.Equal(t, int64(8), saved["id"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NewDuplicate", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectExec("INSERT INTO `users` SET `username` = ?, `country` = ?").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'anna' for key 'username_uniq'"})

		_, err := client.Save(ctx, users, fkorm.Row{"username": "anna", "country": 3}, fkorm.WithSaveMode(fkorm.SaveNew))
		require.Error(t, err)
		assert.True(t, fkorm.IsUniqueConstraintError(err))
		var qe *fkorm.QueryError
		require.True(t, errors.As(err, &qe))
		assert.Equal(t, "INSERT INTO `users` SET `username` = ?, `country` = ?", qe.Statement)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Existing", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectExec("UPDATE `users` SET `username` = ? WHERE `id` = ?").
			WithArgs("marko", 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		row := fkorm.Row{"id": 7, "username": "marko"}
		saved, err := client.Save(ctx, users, row, fkorm.WithSaveMode(fkorm.SaveExisting))
		require.NoError(t, err)
		assert.Equal(t, row, saved)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExistingWithoutKey", func(t *testing.T) {
		client, mock := newClient(t)
		_, err := client.Save(ctx, users, fkorm.Row{"username": "marko"}, fkorm.WithSaveMode(fkorm.SaveExisting))
		assert.ErrorIs(t, err, fkorm.ErrSave)
		_, err = client.Save(ctx, profiles, fkorm.Row{"owner": "mark"}, fkorm.WithSaveMode(fkorm.SaveExisting))
		assert.ErrorIs(t, err, fkorm.ErrSave)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoRowsAffected", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectExec("UPDATE `users` SET `username` = ? WHERE `id` = ?").
			WithArgs("marko", 99).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := client.Save(ctx, users, fkorm.Row{"id": 99, "username": "marko"}, fkorm.WithSaveMode(fkorm.SaveExisting))
		assert.ErrorIs(t, err, fkorm.ErrSave)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		client, mock := newClient(t)
		for name, call := range map[string]func() error{
			"Mode": func() error {
				_, err := client.Save(ctx, users, fkorm.Row{"username": "x"}, fkorm.WithSaveMode(fkorm.SaveMode(9)))
				return err
			},
			"Table": func() error {
				_, err := client.Save(ctx, schema.TableName("posts"), fkorm.Row{"title": "x"})
				return err
			},
			"Column": func() error {
				_, err := client.Save(ctx, users, fkorm.Row{"email": "x"})
				return err
			},
			"Empty": func() error {
				_, err := client.Save(ctx, users, nil)
				return err
			},
			"ObjectValue": func() error {
				_, err := client.Save(ctx, users, fkorm.Row{"username": fkorm.Row{"first": "mark"}})
				return err
			},
		} {
			t.Run(name, func(t *testing.T) {
				assert.ErrorIs(t, call(), fkorm.ErrInvalidArgument)
			})
		}
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveMany(t *testing.T) {
	ctx := context.Background()
	client, mock := newClient(t)
	insert := "INSERT INTO `countries` SET `name` = ? ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)"
	mock.ExpectExec(insert).WithArgs("Estonia").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WithArgs("Latvia").WillReturnError(errors.New("lost connection"))

	saved, err := client.SaveMany(ctx, countries, []fkorm.Row{{"name": "Estonia"}, {"name": "Latvia"}, {"name": "Lithuania"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
	assert.Equal(t, []fkorm.Row{{"id": int64(1), "name": "Estonia"}}, saved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Hydrates", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery(selectUser).WithArgs("mark").
			WillReturnRows(userRows().AddRow(int64(7), "mark", int64(3), nil))
		mock.ExpectQuery(selectCountry).WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "Estonia"))

		row, err := client.Load(ctx, users, fkorm.Criteria{"username": "mark"})
		require.NoError(t, err)
		assert.Equal(t, fkorm.Row{
			"id":       int64(7),
			"username": "mark",
			"country":  fkorm.Row{"id": int64(3), "name": "Estonia"},
			"role":     nil,
		}, row)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WithoutLookup", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery("SELECT * FROM `users` WHERE `id` = ? LIMIT 2 OFFSET 0").WithArgs(7).
			WillReturnRows(userRows().AddRow(int64(7), "mark", int64(3), nil))

		row, err := client.Load(ctx, users, 7, fkorm.WithoutLookup())
		require.NoError(t, err)
		assert.Equal(t, int64(3), row["country"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DepthZero", func(t *testing.T) {
		client, mock := newClient(t, fkorm.WithLookupDepth(0))
		mock.ExpectQuery(selectUser).WithArgs("mark").
			WillReturnRows(userRows().AddRow(int64(7), "mark", int64(3), nil))

		row, err := client.Load(ctx, users, fkorm.Criteria{"username": "mark"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), row["country"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery(selectUser).WithArgs("nobody").WillReturnRows(userRows())

		row, err := client.Load(ctx, users, fkorm.Criteria{"username": "nobody"})
		assert.Nil(t, row)
		require.Error(t, err)
		assert.True(t, fkorm.IsNotFound(err))
		var le *fkorm.LookupError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, 0, le.Count())
		assert.Equal(t, "users", le.Table)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotSingular", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery("SELECT * FROM `users` WHERE `country` = ? LIMIT 2 OFFSET 0").WithArgs(3).
			WillReturnRows(userRows().
				AddRow(int64(7), "mark", int64(3), nil).
				AddRow(int64(8), "anna", int64(3), nil))

		row, err := client.Load(ctx, users, fkorm.Criteria{"country": 3})
		assert.Nil(t, row)
		assert.True(t, fkorm.IsNotSingular(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DocumentRoundTrip", func(t *testing.T) {
		client, mock := newClient(t)
		settings := map[string]any{"theme": "dark", "size": float64(12), "tags": []any{"a", "b"}}
		stored := `{"size":12,"tags":["a","b"],"theme":"dark"}`
		mock.ExpectExec("INSERT INTO `profiles` SET `owner` = ?, `settings` = ? ON DUPLICATE KEY UPDATE `settings` = VALUES(`settings`)").
			WithArgs("mark", stored).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT * FROM `profiles` WHERE `owner` = ? LIMIT 2 OFFSET 0").WithArgs("mark").
			WillReturnRows(sqlmock.NewRows([]string{"owner", "settings"}).AddRow("mark", stored))

		saved, err := client.Save(ctx, profiles, fkorm.Row{"owner": "mark", "settings": settings})
		require.NoError(t, err)
		assert.Equal(t, settings, saved["settings"])
		row, err := client.Load(ctx, profiles, "mark")
		require.NoError(t, err)
		assert.Equal(t, settings, row["settings"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SaveAlwaysIdempotent", func(t *testing.T) {
		client, mock := newClient(t)
		settings := map[string]any{"theme": "dark", "tags": []any{"a"}}
		stored := `{"tags":["a"],"theme":"dark"}`
		upsert := "INSERT INTO `profiles` SET `owner` = ?, `settings` = ? ON DUPLICATE KEY UPDATE `settings` = VALUES(`settings`)"
		mock.ExpectExec(upsert).WithArgs("mark", stored).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(upsert).WithArgs("mark", stored).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT * FROM `profiles` WHERE `owner` = ? LIMIT 2 OFFSET 0").WithArgs("mark").
			WillReturnRows(sqlmock.NewRows([]string{"owner", "settings"}).AddRow("mark", stored))

		row := fkorm.Row{"owner": "mark", "settings": settings}
		first, err := client.Save(ctx, profiles, row)
		require.NoError(t, err)
		second, err := client.Save(ctx, profiles, row)
		require.NoError(t, err, "an unchanged upsert is not a failure")
		assert.Equal(t, first, second)

		loaded, err := client.Load(ctx, profiles, "mark")
		require.NoError(t, err)
		require.Equal(t, row, loaded)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		client, mock := newClient(t)
		_, err := client.Load(ctx, schema.TableName("posts"), nil)
		assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
		_, err = client.Load(ctx, users, fkorm.Criteria{"email": "x"})
		assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
		_, err = client.Load(ctx, users, 1, fkorm.WithSort(schema.ColumnName("-email")))
		assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoadMany(t *testing.T) {
	ctx := context.Background()

	t.Run("Options", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery("SELECT `id`, `username` FROM `users` WHERE `country` = ? ORDER BY `username` DESC LIMIT 10 OFFSET 20").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow(int64(9), "zoe").AddRow(int64(8), "anna"))

		rows, err := client.LoadMany(ctx, users, fkorm.Criteria{"country": 3},
			fkorm.WithFields(schema.Columns("id", "username")...),
			fkorm.WithSort(schema.ColumnName("-username")),
			fkorm.WithLimit(20, 10),
		)
		require.NoError(t, err)
		assert.Equal(t, []fkorm.Row{{"id": int64(9), "username": "zoe"}, {"id": int64(8), "username": "anna"}}, rows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FirstLast", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery("SELECT * FROM `countries` LIMIT 10 OFFSET 5").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

		rows, err := client.LoadMany(ctx, countries, nil, fkorm.WithFirst(5), fkorm.WithLast(15))
		require.NoError(t, err)
		assert.Empty(t, rows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NestedCriteria", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery(selectCountryID).WithArgs("Estonia").WillReturnRows(idRows(3))
		mock.ExpectQuery("SELECT * FROM `users` WHERE `country` = ?").WithArgs(int64(3)).
			WillReturnRows(userRows().AddRow(int64(7), "mark", int64(3), nil))

		rows, err := client.LoadMany(ctx, users, fkorm.Criteria{"country": fkorm.Criteria{"name": "Estonia"}}, fkorm.WithoutLookup())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "mark", rows[0]["username"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidRange", func(t *testing.T) {
		client, mock := newClient(t)
		_, err := client.LoadMany(ctx, users, nil, fkorm.WithFirst(5))
		assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
		_, err = client.LoadMany(ctx, users, nil, fkorm.WithFirst(0), fkorm.WithLast(2), fkorm.WithCount(2))
		assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
		_, err = client.LoadMany(ctx, users, nil, fkorm.WithFields(schema.ColumnName("email")))
		assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	const selectID = "SELECT `id` FROM `users` WHERE `id` = ? LIMIT 2 OFFSET 0"

	t.Run("Single", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery(selectID).WithArgs(1).WillReturnRows(idRows(1))
		mock.ExpectExec("DELETE FROM `users` WHERE `id` = ?").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT * FROM `users` WHERE `id` = ? LIMIT 2 OFFSET 0").WithArgs(1).WillReturnRows(userRows())
		mock.ExpectQuery(selectID).WithArgs(1).WillReturnRows(idRows())

		require.NoError(t, client.Delete(ctx, users, 1))
		_, err := client.Load(ctx, users, 1)
		assert.True(t, fkorm.IsNotFound(err))
		err = client.Delete(ctx, users, 1)
		assert.True(t, fkorm.IsNotFound(err), "deleting again reports not found without side effects")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ambiguous", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectQuery("SELECT `id` FROM `users` WHERE `country` = ? LIMIT 2 OFFSET 0").WithArgs(3).WillReturnRows(idRows(1, 2))

		err := client.Delete(ctx, users, fkorm.Criteria{"country": 3})
		assert.True(t, fkorm.IsNotSingular(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Many", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectExec("DELETE FROM `users` WHERE `country` = ?").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := client.DeleteMany(ctx, users, fkorm.Criteria{"country": 3})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownTable", func(t *testing.T) {
		client, mock := newClient(t)
		err := client.Delete(ctx, schema.TableName("nope"), 1)
		assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestForeignKeys(t *testing.T) {
	ctx := context.Background()
	client, mock := newClient(t)

	fks, err := client.ForeignKeys(users)
	require.NoError(t, err)
	require.Len(t, fks, 2)
	country, role := fks[0], fks[1]
	assert.Equal(t, "country", country.Name)
	assert.Equal(t, "role", role.Name)

	mock.ExpectQuery(selectCountryID).WithArgs("Estonia").WillReturnRows(idRows(3))
	id, err := client.LookupID(ctx, country, fkorm.Criteria{"name": "Estonia"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	mock.ExpectQuery(selectCountry).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "Estonia"))
	value, err := client.LookupValue(ctx, country, 3)
	require.NoError(t, err)
	assert.Equal(t, fkorm.Row{"id": int64(3), "name": "Estonia"}, value)

	row := fkorm.Row{"username": "mark", "country": 3, "role": nil}
	out, err := client.LookupIDs(ctx, users, row)
	require.NoError(t, err)
	assert.Equal(t, row, out, "raw identifiers are kept")
	out, err = client.LookupValues(ctx, users, fkorm.Row{"country": fkorm.Row{"id": 3}, "role": nil})
	require.NoError(t, err)
	assert.Equal(t, fkorm.Row{"country": fkorm.Row{"id": 3}, "role": nil}, out, "rows and nulls are kept")

	username, _ := compileTestSchema(t).Tables[2].Field("username")
	_, err = client.LookupID(ctx, username, fkorm.Criteria{"name": "x"})
	assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
	_, err = client.LookupValue(ctx, nil, 1)
	assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
	_, err = client.LookupID(ctx, country, fkorm.Criteria{"code": "EE"})
	assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMultipleTables(t *testing.T) {
	ctx := context.Background()
	data := []fkorm.TableRows{
		{Table: schema.TableName("roles"), Rows: []fkorm.Row{{"name": "admin"}}},
		{Table: countries, Rows: []fkorm.Row{{"name": "Estonia"}}},
		{Table: users, Rows: []fkorm.Row{{"username": "mark", "country": 3, "role": fkorm.Row{"name": "admin"}}}},
	}
	insertUser := "INSERT INTO `users` SET `username` = ?, `country` = ?, `role` = ? " +
		"ON DUPLICATE KEY UPDATE `username` = VALUES(`username`), `country` = VALUES(`country`), `role` = VALUES(`role`)"
	expectTables := func(mock sqlmock.Sqlmock) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `roles` SET `name` = ? ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)").
			WithArgs("admin").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO `countries` SET `name` = ? ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)").
			WithArgs("Estonia").WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectQuery(selectRoleID).WithArgs("admin").WillReturnRows(idRows(1))
	}

	t.Run("Commit", func(t *testing.T) {
		client, mock := newClient(t)
		expectTables(mock)
		mock.ExpectExec(insertUser).WithArgs("mark", 3, int64(1)).WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectCommit()

		require.NoError(t, client.SaveMultipleTables(ctx, data))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback", func(t *testing.T) {
		client, mock := newClient(t)
		expectTables(mock)
		mock.ExpectExec(insertUser).WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})
		mock.ExpectRollback()

		err := client.SaveMultipleTables(ctx, data)
		require.Error(t, err)
		assert.True(t, fkorm.IsForeignKeyConstraintError(err))
		var re *fkorm.RollbackError
		assert.False(t, errors.As(err, &re))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackFailure", func(t *testing.T) {
		client, mock := newClient(t)
		expectTables(mock)
		mock.ExpectExec(insertUser).WillReturnError(errors.New("lost connection"))
		mock.ExpectRollback().WillReturnError(errors.New("bad connection"))

		err := client.SaveMultipleTables(ctx, data)
		var re *fkorm.RollbackError
		require.True(t, errors.As(err, &re))
		assert.True(t, fkorm.IsQueryError(re.Err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownTable", func(t *testing.T) {
		client, mock := newClient(t)
		err := client.SaveMultipleTables(ctx, []fkorm.TableRows{{Table: schema.TableName("posts")}})
		assert.ErrorIs(t, err, fkorm.ErrInvalidArgument)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM `users` WHERE `country` = ?").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		tx, err := client.BeginTx(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, tx.ID().String())
		_, err = tx.Client().BeginTx(ctx)
		assert.ErrorIs(t, err, fkorm.ErrTxStarted)

		n, err := tx.Client().DeleteMany(ctx, users, fkorm.Criteria{"country": 3})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		require.NoError(t, tx.Commit())
		require.NoError(t, tx.Commit(), "second release is a no-op")
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CommitFailure", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("deadlock"))

		tx, err := client.BeginTx(ctx)
		require.NoError(t, err)
		assert.ErrorContains(t, tx.Commit(), "deadlock")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackAfterCommitFailure", func(t *testing.T) {
		var buf bytes.Buffer
		log := diag.New(slog.New(slog.NewTextHandler(&buf, nil)), diag.LevelWarn)
		client, mock := newClient(t, fkorm.WithLogger(log))
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("deadlock"))

		tx, err := client.BeginTx(ctx)
		require.NoError(t, err)
		require.ErrorContains(t, tx.Commit(), "deadlock")
		require.NoError(t, tx.Rollback())
		assert.NotContains(t, buf.String(), "transaction already finished", "a failed commit leaves the transaction open")

		require.NoError(t, tx.Rollback())
		assert.Contains(t, buf.String(), "transaction already finished")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := client.WithTx(ctx, func(tx *fkorm.Client) error {
			return errors.New("abort")
		})
		assert.EqualError(t, err, "abort")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginFailure", func(t *testing.T) {
		client, mock := newClient(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		_, err := client.BeginTx(ctx)
		assert.ErrorContains(t, err, "too many connections")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDebug(t *testing.T) {
	client, mock := newClient(t)
	debug := client.Debug()
	assert.Same(t, debug, debug.Debug())
	assert.Same(t, client.Schema(), debug.Schema())

	mock.ExpectQuery(selectCountryID).WithArgs("Estonia").WillReturnRows(idRows(3))
	fks, err := debug.ForeignKeys(users)
	require.NoError(t, err)
	_, err = debug.LookupID(context.Background(), fks[0], fkorm.Criteria{"name": "Estonia"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
