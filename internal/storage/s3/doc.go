/*
Package s3 is the S3 backend family: AWS S3 (aws), generic S3-compatible services (s3c)
and Cloudflare R2 (r2), all served through the AWS SDK for Go v2.

# Components

A Factory builds one Backend per scheme from its provider record. The Backend plays three
roles in the bundle:

  - driver: Stat, List, Open, OpenRange, CatFile, PipeFile, PutFile, Copy, Move,
    RemoveFile, RemoveAll, Rmdir, Mkdir, Touch, PresignGet, SetMetadata, InvalidateCache
  - native client: MakeBucket and the multipart primitives used by write handles
  - transfer manager host: NewTransferManager wraps the SDK manager.Uploader and
    manager.Downloader

# Client Configuration

ClientManager loads the AWS configuration with static credentials when an access key is
set and sizes the HTTP transport by max_pool_connections. Non-AWS kinds get path-style
addressing as configured and only send request checksums when an operation requires
them, since S3-compatible services commonly reject the SDK's default trailing checksums.

# CargoShip

With use_cargoship enabled, transfer manager uploads go through the CargoShip transporter
first. Any CargoShip failure is logged and the upload is retried on the SDK uploader.

# Listing Cache

Directory listings are cached per path in an expiring LRU. Every write invalidates the
listing of the written path and of all its ancestors.

# Errors

SDK errors are translated into the cloudpath taxonomy: missing keys and buckets become
NotFound, 403 responses AccessDenied, multipart rejections (EntityTooSmall, InvalidPart,
InvalidPartOrder) MultipartProtocolViolation, everything else TransferFailure. The native
multipart primitives return SDK errors unchanged so handles can classify them.
*/
package s3
