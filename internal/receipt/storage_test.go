package receipt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage ImageStore
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir, "http://img.local/tickets/")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Upload", func() {
		var (
			name   string
			stored *StoredImage
			err    error
		)

		BeforeEach(func() {
			name = "t1_ticket.png"
		})

		JustBeforeEach(func() {
			stored, err = storage.Upload(name, []byte("test file content"), "image/png")
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the name as ref", func() {
				Expect(stored.Ref).To(Equal(name))
			})

			It("should build the public URL", func() {
				Expect(stored.URL).To(Equal("http://img.local/tickets/t1_ticket.png"))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, name)).To(BeAnExistingFile())
			})
		})

		When("the name escapes the storage directory", func() {
			BeforeEach(func() {
				name = "../evil.png"
			})

			It("returns ErrInput", func() {
				Expect(err).To(MatchError(ErrInput))
			})
		})
	})

	Describe("Get", func() {
		var (
			ref  string
			data []byte
			err  error
		)

		JustBeforeEach(func() {
			data, err = storage.Get(ref)
		})

		When("file exists", func() {
			BeforeEach(func() {
				ref = "test.png"
				_, upErr := storage.Upload(ref, []byte("test file content"), "image/png")
				Expect(upErr).NotTo(HaveOccurred())
			})

			It("should return the correct file data", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("test file content"))
			})
		})

		When("file does not exist", func() {
			BeforeEach(func() {
				ref = "nonexistent.png"
			})

			It("returns ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("Delete", func() {
		var (
			ref string
			err error
		)

		JustBeforeEach(func() {
			err = storage.Delete(ref)
		})

		When("file exists", func() {
			BeforeEach(func() {
				ref = "test.png"
				_, upErr := storage.Upload(ref, []byte("test content"), "image/png")
				Expect(upErr).NotTo(HaveOccurred())
			})

			It("should remove the file from disk", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(filepath.Join(tmpDir, ref)).NotTo(BeAnExistingFile())
			})
		})

		When("file does not exist", func() {
			BeforeEach(func() {
				ref = "nonexistent.png"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("deleting file")))
			})
		})
	})

	Describe("NewLocalStorage", func() {
		It("creates a missing directory", func() {
			storagePath := filepath.Join(GinkgoT().TempDir(), "tickets")
			_, err := NewLocalStorage(storagePath, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(storagePath).To(BeADirectory())
		})
	})
})

// mockS3 is a mock implementation of s3API backed by a map
type mockS3 struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
	deleteErr    error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	m.objects[key] = data
	m.contentTypes[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	delete(m.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

var _ = Describe("S3ImageStore", func() {
	var (
		client *mockS3
		store  *S3ImageStore
	)

	BeforeEach(func() {
		client = newMockS3()
		store = newS3ImageStore(client, S3Config{
			Bucket:    "groceries",
			Prefix:    "/tickets/",
			PublicURL: "https://cdn.example.com/",
		})
	})

	Describe("Upload", func() {
		It("puts the object under the prefix", func() {
			stored, err := store.Upload("t1_ticket.png", []byte("png"), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Ref).To(Equal("tickets/t1_ticket.png"))
			Expect(stored.URL).To(Equal("https://cdn.example.com/tickets/t1_ticket.png"))
			Expect(client.objects).To(HaveKeyWithValue("groceries/tickets/t1_ticket.png", []byte("png")))
			Expect(client.contentTypes).To(HaveKeyWithValue("groceries/tickets/t1_ticket.png", "image/png"))
		})

		When("the put fails", func() {
			It("returns the error", func() {
				client.putErr = errors.New("access denied")
				_, err := store.Upload("t1.png", []byte("png"), "image/png")
				Expect(err).To(MatchError(ContainSubstring("access denied")))
			})
		})
	})

	Describe("Get", func() {
		It("reads an uploaded object back", func() {
			stored, err := store.Upload("t1.png", []byte("png"), "image/png")
			Expect(err).NotTo(HaveOccurred())

			data, err := store.Get(stored.Ref)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png")))
		})

		It("maps a missing key to ErrNotFound", func() {
			_, err := store.Get("tickets/missing.png")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("Delete", func() {
		It("removes the object", func() {
			stored, err := store.Upload("t1.png", []byte("png"), "image/png")
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Delete(stored.Ref)).To(Succeed())
			Expect(client.objects).To(BeEmpty())
		})
	})

	Describe("NewS3ImageStore", func() {
		It("requires a bucket", func() {
			_, err := NewS3ImageStore(context.Background(), S3Config{})
			Expect(err).To(MatchError(ContainSubstring("bucket is required")))
		})
	})
})
